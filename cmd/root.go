// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/service"
)

type contextKey string

const configKey contextKey = "config"

// viperKeyAnnotation marks a flag that overrides a config key.
const viperKeyAnnotation = "snapclick/viper-key"

var (
	cfgFile string
	dryRun  bool
)

// NewRootCommand builds the command tree. The factory is injected so tests can
// drive commands against a fake desktop.
func NewRootCommand(factory service.ComponentFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "snapclick",
		Short: "snapclick sends clicks to a chosen window, optionally gated on what it shows.",
		Long: `snapclick targets a top-level window, stores click points relative to it and
replays them on an interval. Points may carry image regions that must match
the live window before the click is sent.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				basicLogger, _ := zap.NewDevelopment()
				defer basicLogger.Sync()
				basicLogger.Error("Failed to initialize configuration", zap.Error(err))
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "snapclick"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting snapclick", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, config.Interface(cfg)))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Run against a simulated desktop instead of the real one.")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	factoryFn := func() service.ComponentFactory {
		if dryRun {
			return newDryRunFactory()
		}
		return factory
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDetectCmd(factoryFn))
	rootCmd.AddCommand(newOffsetCmd(factoryFn))
	rootCmd.AddCommand(newCaptureCmd(factoryFn))
	rootCmd.AddCommand(newRunCmd(factoryFn))
	rootCmd.AddCommand(newRecordCmd(factoryFn))
	rootCmd.AddCommand(newProfileCmd(factoryFn))
	rootCmd.AddCommand(newPointCmd(factoryFn))
	rootCmd.AddCommand(newServeCmd(factoryFn))
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newLogsCmd())
	return rootCmd
}

// Execute runs the root command with the signal-aware context from main.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand(service.NewComponentFactory())
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.GetLogger().Debug("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads in the config file and SNAPCLICK_ environment
// variables, then binds the persistent flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SNAPCLICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	// Per-command overrides share their viper key as the flag's annotation.
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := f.Annotations[viperKeyAnnotation]
		if !ok || len(key) == 0 || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(key[0], f)
	})
	return bindErr
}

func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}

// bindConfigFlag ties a flag to a config key so it overrides file and env.
func bindConfigFlag(cmd *cobra.Command, flag, key string) {
	_ = cmd.Flags().SetAnnotation(flag, viperKeyAnnotation, []string{key})
}
