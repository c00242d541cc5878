package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/snapclick/internal/service"
)

// fakeControl records commands and answers with canned envelopes.
type fakeControl struct {
	mu       sync.Mutex
	received []service.Command
}

func (f *fakeControl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var cmd service.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.received = append(f.received, cmd)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch cmd.Name {
	case service.CmdListTasks:
		_, _ = w.Write([]byte(`{"success":true,"data":[{"taskId":"farm","state":"running"}]}`))
	case service.CmdStopTask:
		_, _ = w.Write([]byte(`{"success":true}`))
	default:
		_, _ = w.Write([]byte(`{"success":false,"error":"unknown command \"` + cmd.Name + `\""}`))
	}
}

func (f *fakeControl) last() service.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[len(f.received)-1]
}

func TestCallCmd(t *testing.T) {
	// -- Setup --
	hermeticEnv(t)
	control := &fakeControl{}
	srv := httptest.NewServer(control)
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")
	ctx := context.Background()

	t.Run("prints the returned data", func(t *testing.T) {
		out, err := runCLI(ctx, t, nil, "call", "--addr", addr, service.CmdListTasks)

		require.NoError(t, err)
		assert.Contains(t, out, `"taskId": "farm"`)
		assert.Empty(t, control.last().Params)
	})

	t.Run("forwards params verbatim", func(t *testing.T) {
		out, err := runCLI(ctx, t, nil, "call", "--addr", addr, service.CmdStopTask, `{"taskId":"farm"}`)

		require.NoError(t, err)
		assert.Empty(t, out)
		assert.JSONEq(t, `{"taskId":"farm"}`, string(control.last().Params))
	})

	t.Run("failed results become errors", func(t *testing.T) {
		_, err := runCLI(ctx, t, nil, "call", "--addr", addr, "explode")
		assert.EqualError(t, err, `unknown command "explode"`)
	})

	t.Run("params must be JSON", func(t *testing.T) {
		_, err := runCLI(ctx, t, nil, "call", "--addr", addr, service.CmdStopTask, `taskId=farm`)
		assert.EqualError(t, err, "params must be a JSON document")
	})
}

func TestCallCmd_ServerDown(t *testing.T) {
	hermeticEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := runCLI(context.Background(), t, nil, "call", "--addr", addr, service.CmdListTasks)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "control server unreachable")
}
