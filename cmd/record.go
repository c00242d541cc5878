package cmd

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/service"
)

type recordOptions struct {
	target   targetFlags
	save     bool
	duration time.Duration
}

func newRecordCmd(factory factoryFunc) *cobra.Command {
	var opts recordOptions
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Records left clicks inside a window as offsets",
		Long: `Watches left clicks on the selected window and prints each one as an offset
relative to the window. With --save every recorded offset is appended to the
snap point working set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory(), func(ctx context.Context, comps *service.Components) error {
				return runRecorder(ctx, cmd.OutOrStdout(), comps, opts)
			})
		},
	}
	opts.target.register(cmd)
	cmd.Flags().BoolVar(&opts.save, "save", false, "Append recorded points to the snap point working set.")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop recording after this long (0 records until interrupted).")
	return cmd
}

func runRecorder(ctx context.Context, out io.Writer, comps *service.Components, opts recordOptions) error {
	logger := observability.GetLogger().Named("record")

	target, err := opts.target.resolve(ctx, comps.Controller)
	if err != nil {
		return err
	}

	stream, unsubscribe := comps.Bus.Subscribe(
		schemas.EventRecordedPoint,
		schemas.EventRecorderError,
		schemas.EventRecorderInfo,
		schemas.EventRecorderStopped,
	)
	defer unsubscribe()

	if _, err := execute(ctx, io.Discard, comps.Controller, service.CmdStartRecorder, map[string]interface{}{"targetWindow": target}); err != nil {
		return err
	}
	defer comps.Controller.StopRecorder(true)
	logger.Info("Recording clicks.", zap.String("title", target.Title), zap.Uint64("handle", uint64(target.Handle)))

	var deadline <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return nil
			}
			switch payload := ev.Payload.(type) {
			case schemas.RecordedPoint:
				if err := printJSON(out, payload.OffsetPoint); err != nil {
					return err
				}
				if opts.save {
					req := service.SnapPointRequest{OffsetX: float64(payload.OffsetX), OffsetY: float64(payload.OffsetY)}
					if _, err := execute(ctx, io.Discard, comps.Controller, service.CmdSaveSnapPoint, req); err != nil {
						logger.Warn("Failed to save recorded point.", zap.Error(err))
					}
				}
			case schemas.RecorderNotice:
				switch ev.Type {
				case schemas.EventRecorderError:
					logger.Warn("Recorder error.", zap.String("message", payload.Message))
				case schemas.EventRecorderStopped:
					return nil
				default:
					logger.Info(payload.Message)
				}
			}
		case <-deadline:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
