package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/snapclick/internal/service"
)

// remoteExecutor sends commands to a running 'snapclick serve'.
type remoteExecutor struct {
	baseURL string
	client  *http.Client
}

func newRemoteExecutor(addr string, timeout time.Duration) *remoteExecutor {
	return &remoteExecutor{
		baseURL: "http://" + addr,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *remoteExecutor) Execute(ctx context.Context, cmd service.Command) service.Result {
	body, err := json.Marshal(cmd)
	if err != nil {
		return service.Fail(fmt.Errorf("failed to encode command: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/command", bytes.NewReader(body))
	if err != nil {
		return service.Fail(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return service.Fail(fmt.Errorf("control server unreachable at %s: %w", r.baseURL, err))
	}
	defer resp.Body.Close()

	var res service.Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&res); err != nil {
		return service.Fail(fmt.Errorf("unreadable reply (HTTP %d): %w", resp.StatusCode, err))
	}
	return res
}

func newCallCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "call <command> [params-json]",
		Short: "Sends one command to a running 'snapclick serve'",
		Long: `Sends a command to the control server and prints the data it returns.
This is how tasks started by the server are stopped from a shell.`,
		Example: `  snapclick call list-tasks
  snapclick call stop-task '{"taskId":"farm"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			var params interface{}
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return errors.New("params must be a JSON document")
				}
				params = json.RawMessage(args[1])
			}
			remote := newRemoteExecutor(cfg.Control().Addr, timeout)
			_, err = execute(cmd.Context(), cmd.OutOrStdout(), remote, args[0], params)
			return err
		},
	}
	cmd.Flags().String("addr", "", "Control server address (default from control.addr).")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout.")
	bindConfigFlag(cmd, "addr", "control.addr")
	return cmd
}
