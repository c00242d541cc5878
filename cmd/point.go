package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/service"
)

// parseSelection reads "x,y,width,height" in snapshot pixels.
func parseSelection(raw string) (map[string]any, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid selection %q: want x,y,width,height", raw)
	}
	keys := []string{"x", "y", "width", "height"}
	sel := make(map[string]any, len(keys))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q: %s is not a number", raw, keys[i])
		}
		sel[keys[i]] = v
	}
	return sel, nil
}

func parseIndex(raw string) (int, error) {
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	return i, nil
}

// pointFlags are shared by add and edit.
type pointFlags struct {
	x, y       float64
	image      string
	selections []string
}

func (p *pointFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&p.x, "x", 0, "Offset from the window's left edge.")
	cmd.Flags().Float64Var(&p.y, "y", 0, "Offset from the window's top edge.")
	cmd.Flags().StringVar(&p.image, "image", "", "Snapshot the selections are cut from (see 'snapclick capture').")
	cmd.Flags().StringArrayVar(&p.selections, "select", nil, "Match region as x,y,width,height within the snapshot. Repeatable.")
}

func (p *pointFlags) request(cmd *cobra.Command, index int) (service.SnapPointRequest, error) {
	req := service.SnapPointRequest{Index: index, OffsetX: p.x, OffsetY: p.y, ImagePath: p.image}
	if cmd.Flags().Changed("select") {
		sels := make([]map[string]any, 0, len(p.selections))
		for _, raw := range p.selections {
			sel, err := parseSelection(raw)
			if err != nil {
				return req, err
			}
			sels = append(sels, sel)
		}
		req.Selections = &sels
	}
	return req, nil
}

func newPointCmd(factory factoryFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "point",
		Short: "Edits the snap point working set used by the default task",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Prints the working set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, factory(), service.CmdListSnapPoints, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <index>",
		Short: "Prints one point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return invoke(cmd, factory(), service.CmdGetSnapPoint, map[string]interface{}{"index": index})
		},
	})

	var add pointFlags
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Appends a point, cutting match templates from --select regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := add.request(cmd, 0)
			if err != nil {
				return err
			}
			return invoke(cmd, factory(), service.CmdSaveSnapPoint, req)
		},
	}
	add.register(addCmd)
	cmd.AddCommand(addCmd)

	var edit pointFlags
	editCmd := &cobra.Command{
		Use:   "edit <index>",
		Short: "Replaces a point's offsets and, with --select, its match regions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			req, err := edit.request(cmd, index)
			if err != nil {
				return err
			}
			return invoke(cmd, factory(), service.CmdEditSnapPoint, req)
		},
	}
	edit.register(editCmd)
	cmd.AddCommand(editCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <index>",
		Short: "Removes a point and its templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return invoke(cmd, factory(), service.CmdDeleteSnapPoint, map[string]interface{}{"index": index})
		},
	})

	var (
		target   targetFlags
		interval time.Duration
	)
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Sets the working set's target window and interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory(), func(ctx context.Context, comps *service.Components) error {
				var s service.SnapSettings
				if target.set() {
					win, err := target.resolve(ctx, comps.Controller)
					if err != nil {
						return err
					}
					s.Target = &win
				}
				if cmd.Flags().Changed("interval") {
					ms := schemas.MillisOf(interval)
					s.Interval = &ms
				}
				_, err := execute(ctx, cmd.OutOrStdout(), comps.Controller, service.CmdUpdateSnapSet, s)
				return err
			})
		},
	}
	target.register(settings)
	settings.Flags().DurationVarP(&interval, "interval", "i", 0, "Interval between rounds.")
	cmd.AddCommand(settings)
	return cmd
}
