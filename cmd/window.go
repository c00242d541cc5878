package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/service"
)

// targetFlags selects a window by exactly one of title, process id or handle.
type targetFlags struct {
	title  string
	pid    int64
	handle uint64
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.title, "title", "", "Select the first window whose title contains this text.")
	cmd.Flags().Int64Var(&t.pid, "pid", 0, "Select the first window owned by this process id.")
	cmd.Flags().Uint64Var(&t.handle, "handle", 0, "Select a window by its native handle.")
	cmd.MarkFlagsMutuallyExclusive("title", "pid", "handle")
}

func (t *targetFlags) set() bool {
	return t.title != "" || t.pid != 0 || t.handle != 0
}

// resolve turns the flags into a live window target.
func (t *targetFlags) resolve(ctx context.Context, exec executor) (schemas.WindowTarget, error) {
	var (
		name   string
		params interface{}
	)
	switch {
	case t.handle != 0:
		// A bare handle is trusted; the task loop reports it if it is gone.
		return schemas.WindowTarget{Handle: schemas.WindowID(t.handle)}, nil
	case t.title != "":
		name, params = service.CmdDetectByTitle, map[string]interface{}{"title": t.title}
	case t.pid != 0:
		name, params = service.CmdDetectByPID, map[string]interface{}{"pid": t.pid}
	default:
		return schemas.WindowTarget{}, errors.New("a target window is required (--title, --pid or --handle)")
	}

	res, err := execute(ctx, io.Discard, exec, name, params)
	if err != nil {
		return schemas.WindowTarget{}, err
	}
	target, ok := res.Data.(schemas.WindowTarget)
	if !ok {
		return schemas.WindowTarget{}, fmt.Errorf("unexpected %s result of type %T", name, res.Data)
	}
	return target, nil
}

func newDetectCmd(factory factoryFunc) *cobra.Command {
	var (
		target targetFlags
		x, y   float64
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Finds a top-level window by screen point, title or process id",
		Example: `  snapclick detect --title "Game"
  snapclick detect --pid 4242
  snapclick detect --x 640 --y 360`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			point := cmd.Flags().Changed("x") || cmd.Flags().Changed("y")
			switch {
			case point && target.set():
				return errors.New("--x/--y cannot be combined with --title, --pid or --handle")
			case point:
				return invoke(cmd, factory(), service.CmdDetectByPoint, map[string]interface{}{"x": x, "y": y})
			case target.title != "":
				return invoke(cmd, factory(), service.CmdDetectByTitle, map[string]interface{}{"title": target.title})
			case target.pid != 0:
				return invoke(cmd, factory(), service.CmdDetectByPID, map[string]interface{}{"pid": target.pid})
			default:
				return errors.New("one of --x/--y, --title or --pid is required")
			}
		},
	}
	cmd.Flags().StringVar(&target.title, "title", "", "Select the first window whose title contains this text.")
	cmd.Flags().Int64Var(&target.pid, "pid", 0, "Select the first window owned by this process id.")
	cmd.Flags().Float64Var(&x, "x", 0, "Screen x coordinate.")
	cmd.Flags().Float64Var(&y, "y", 0, "Screen y coordinate.")
	cmd.MarkFlagsMutuallyExclusive("title", "pid")
	return cmd
}

func newOffsetCmd(factory factoryFunc) *cobra.Command {
	var (
		handle uint64
		x, y   float64
	)
	cmd := &cobra.Command{
		Use:   "offset",
		Short: "Converts a screen point into an offset relative to a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, factory(), service.CmdComputeOffset, map[string]interface{}{
				"handle": handle,
				"x":      x,
				"y":      y,
			})
		},
	}
	cmd.Flags().Uint64Var(&handle, "handle", 0, "Native handle of the window (required).")
	cmd.Flags().Float64Var(&x, "x", 0, "Screen x coordinate.")
	cmd.Flags().Float64Var(&y, "y", 0, "Screen y coordinate.")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func newCaptureCmd(factory factoryFunc) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Saves a snapshot of a window's contents to the snapshot directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory(), func(ctx context.Context, comps *service.Components) error {
				win, err := target.resolve(ctx, comps.Controller)
				if err != nil {
					return err
				}
				_, err = execute(ctx, cmd.OutOrStdout(), comps.Controller, service.CmdCaptureWindow, map[string]interface{}{"handle": win.Handle})
				return err
			})
		},
	}
	target.register(cmd)
	return cmd
}
