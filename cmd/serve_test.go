package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/snapclick/internal/service"
)

func TestServeCmd_StopsOnCancel(t *testing.T) {
	// -- Setup --
	hermeticEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)

	// -- Execution --
	go func() {
		_, err := runCLI(ctx, t, service.NewComponentFactoryWithDesktop(newDesktop()), "serve", "--addr", "127.0.0.1:0")
		errCh <- err
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	// -- Assertions --
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeCmd_AddressInUse(t *testing.T) {
	hermeticEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = runCLI(context.Background(), t, service.NewComponentFactoryWithDesktop(newDesktop()), "serve", "--addr", ln.Addr().String())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen on")
}
