package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/events"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/service"
)

type stopParams struct {
	TaskID string `json:"taskId"`
}

type runOptions struct {
	target     targetFlags
	taskID     string
	specFile   string
	points     []string
	interval   time.Duration
	duration   time.Duration
	useDefault bool
}

func newRunCmd(factory factoryFunc) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a click task in the foreground until it ends or is interrupted",
		Long: `Runs a click task and prints its status changes. The task comes from a JSON
task file, from flags, or with --default from the saved snap point working set.`,
		Example: `  snapclick run --title "Game" --point 120,80 --point 300,200 --interval 1500ms
  snapclick run --file farm.json
  snapclick run --default --duration 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory(), func(ctx context.Context, comps *service.Components) error {
				return runTask(ctx, cmd.OutOrStdout(), comps, opts)
			})
		},
	}
	opts.target.register(cmd)
	cmd.Flags().StringVar(&opts.taskID, "id", "", "Task id (default: a random id).")
	cmd.Flags().StringVarP(&opts.specFile, "file", "f", "", "Read the task from a JSON file.")
	cmd.Flags().StringArrayVarP(&opts.points, "point", "p", nil, "Click offset as x,y relative to the window. Repeatable.")
	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", 0, "Time between rounds (default from config).")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop the task after this long (0 runs until interrupted).")
	cmd.Flags().BoolVar(&opts.useDefault, "default", false, "Run the default task built from the snap point working set.")
	cmd.MarkFlagsMutuallyExclusive("file", "default")
	cmd.MarkFlagsMutuallyExclusive("file", "point")
	return cmd
}

// parsePoint reads "x,y" into an offset.
func parsePoint(raw string) (schemas.ClickPoint, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return schemas.ClickPoint{}, fmt.Errorf("invalid point %q: want x,y", raw)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return schemas.ClickPoint{}, fmt.Errorf("invalid point %q: coordinates must be integers", raw)
	}
	if x < 0 || y < 0 {
		return schemas.ClickPoint{}, fmt.Errorf("invalid point %q: offsets must not be negative", raw)
	}
	return schemas.ClickPoint{OffsetPoint: schemas.OffsetPoint{OffsetX: x, OffsetY: y}}, nil
}

func readSpecFile(path string) (schemas.TaskSpec, error) {
	var spec schemas.TaskSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("failed to read task file: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	return spec, nil
}

// buildCommand turns the options into the start command to send.
func buildCommand(ctx context.Context, exec executor, opts runOptions) (string, interface{}, string, error) {
	var points []schemas.ClickPoint
	for _, raw := range opts.points {
		p, err := parsePoint(raw)
		if err != nil {
			return "", nil, "", err
		}
		points = append(points, p)
	}

	if opts.useDefault {
		params := service.DefaultTaskParams{Points: points}
		if opts.interval > 0 {
			ms := schemas.MillisOf(opts.interval)
			params.Interval = &ms
		}
		if opts.target.set() {
			target, err := opts.target.resolve(ctx, exec)
			if err != nil {
				return "", nil, "", err
			}
			params.Target = &target
		}
		return service.CmdStartDefault, params, schemas.DefaultTaskID, nil
	}

	var spec schemas.TaskSpec
	if opts.specFile != "" {
		var err error
		if spec, err = readSpecFile(opts.specFile); err != nil {
			return "", nil, "", err
		}
	} else {
		spec.Points = points
	}
	if opts.taskID != "" {
		spec.TaskID = opts.taskID
	}
	if spec.TaskID == "" {
		spec.TaskID = uuid.NewString()
	}
	if opts.interval > 0 {
		spec.Interval = schemas.MillisOf(opts.interval)
	}
	if opts.target.set() {
		target, err := opts.target.resolve(ctx, exec)
		if err != nil {
			return "", nil, "", err
		}
		spec.Target = target
	}
	return service.CmdStartTask, spec, spec.TaskID, nil
}

// runTask starts the task and relays its status events until it reaches a
// terminal state, the duration elapses or ctx is cancelled.
func runTask(ctx context.Context, out io.Writer, comps *service.Components, opts runOptions) error {
	logger := observability.GetLogger().Named("run")

	name, params, taskID, err := buildCommand(ctx, comps.Controller, opts)
	if err != nil {
		return err
	}

	// Subscribe first so the start event is not missed.
	stream, unsubscribe := comps.Bus.Subscribe(schemas.EventTaskStatus, schemas.EventItemStatus)
	defer unsubscribe()

	if _, err := execute(ctx, out, comps.Controller, name, params); err != nil {
		return err
	}
	logger.Info("Task running.", zap.String("task_id", taskID))

	var deadline <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	stop := func(reason string) error {
		logger.Info("Stopping task.", zap.String("task_id", taskID), zap.String("reason", reason))
		params, err := json.Marshal(stopParams{TaskID: taskID})
		if err != nil {
			return fmt.Errorf("failed to encode stop request: %w", err)
		}
		res := comps.Controller.Execute(context.Background(), service.Command{
			Name:   service.CmdStopTask,
			Params: params,
		})
		if !res.Success {
			return fmt.Errorf("failed to stop task %s: %s", taskID, res.Error)
		}
		return nil
	}

	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return nil
			}
			status, ok := ev.Payload.(schemas.TaskStatus)
			if !ok || status.TaskID != taskID {
				continue
			}
			printStatus(out, ev, status)
			if !status.Running {
				if status.Type == schemas.StatusError {
					return fmt.Errorf("task %s ended: %s", taskID, status.Message)
				}
				return nil
			}
		case <-deadline:
			return stop("duration elapsed")
		case <-ctx.Done():
			if err := stop("interrupted"); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

func printStatus(out io.Writer, ev events.Event, status schemas.TaskStatus) {
	fmt.Fprintf(out, "%s [%s] %s: %s\n", ev.Timestamp.Format(time.TimeOnly), status.Type, status.TaskID, status.Message)
}
