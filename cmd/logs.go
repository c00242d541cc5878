package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

func newLogsCmd() *cobra.Command {
	var (
		follow bool
		level  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the rotated JSON log file in a readable form",
		Long: `Reads logger.log_file and prints one line per entry. With --follow new
entries are printed as they are written, across rotations, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path := cfg.Logger().LogFile
			if path == "" {
				return errors.New("logger.log_file is not configured (hint: set SNAPCLICK_LOGGER_LOG_FILE)")
			}
			var minLevel zapcore.Level
			if err := minLevel.UnmarshalText([]byte(level)); err != nil {
				return fmt.Errorf("invalid --level %q", level)
			}
			return printLog(cmd.Context(), cmd.OutOrStdout(), path, follow, minLevel)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries.")
	cmd.Flags().StringVarP(&level, "level", "l", "debug", "Hide entries below this level.")
	return cmd
}

// printLog tails path, formatting each entry at or above minLevel.
func printLog(ctx context.Context, out io.Writer, path string, follow bool, minLevel zapcore.Level) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				_ = t.Stop()
				return fmt.Errorf("failed to read log file: %w", line.Err)
			}
			if formatted, keep := formatLogLine(line.Text, minLevel); keep {
				fmt.Fprintln(out, formatted)
			}
		case <-ctx.Done():
			return t.Stop()
		}
	}
}

// formatLogLine renders one JSON log entry as "ts LEVEL [logger] msg k=v".
// Lines that are not JSON are passed through unchanged.
func formatLogLine(text string, minLevel zapcore.Level) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	var entry map[string]interface{}
	if err := json.UnmarshalFromString(text, &entry); err != nil {
		return text, true
	}

	levelText, _ := entry["level"].(string)
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(levelText)); err == nil && lvl < minLevel {
		return "", false
	}

	var b strings.Builder
	if ts, ok := entry["ts"].(string); ok {
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	b.WriteString(strings.ToUpper(levelText))
	if name, ok := entry["logger"].(string); ok && name != "" {
		fmt.Fprintf(&b, " [%s]", name)
	}
	if msg, ok := entry["msg"].(string); ok {
		b.WriteByte(' ')
		b.WriteString(msg)
	}

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "ts", "level", "logger", "msg", "stacktrace":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry[k])
	}
	return b.String(), true
}
