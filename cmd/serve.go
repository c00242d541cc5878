package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/internal/control"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/service"
)

func newServeCmd(factory factoryFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the command surface and event stream to a local UI",
		Long: `Starts the control bridge. Commands are accepted as JSON on
POST /api/v1/command and task, recorder and status events are streamed on
/ws/v1/events. The server stops, along with every running task, on SIGINT or
SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return withComponents(cmd, factory(), func(ctx context.Context, comps *service.Components) error {
				logger := observability.GetLogger()
				server, err := control.NewServer(cfg.Control(), comps.Controller, comps.Bus, logger)
				if err != nil {
					return err
				}
				err = server.ListenAndServe(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Control server failed.", zap.Error(err))
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from control.addr).")
	bindConfigFlag(cmd, "addr", "control.addr")
	return cmd
}
