package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/service"
)

func newProfileCmd(factory factoryFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manages named click profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lists stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, factory(), service.CmdListProfiles, nil)
		},
	})

	var interval time.Duration
	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Saves the snap point working set under a name",
		Long: `Saves a profile. Points, target window and interval are taken from the
snap point working set; --interval overrides the stored interval.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := service.SaveProfileParams{Name: args[0]}
			if interval > 0 {
				ms := schemas.MillisOf(interval)
				params.Interval = &ms
			}
			return invoke(cmd, factory(), service.CmdSaveProfile, params)
		},
	}
	save.Flags().DurationVarP(&interval, "interval", "i", 0, "Interval between rounds.")
	cmd.AddCommand(save)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Deletes a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, factory(), service.CmdDeleteProfile, map[string]interface{}{"name": args[0]})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load <name>",
		Short: "Replaces the snap point working set with a stored profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(cmd, factory(), service.CmdLoadProfile, map[string]interface{}{"name": args[0]})
		},
	})
	return cmd
}
