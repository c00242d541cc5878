package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/observability"
	"github.com/xkilldash9x/snapclick/internal/platform/fake"
	"github.com/xkilldash9x/snapclick/internal/service"
)

// factoryFunc resolves the component factory at run time so --dry-run is
// honoured after flags are parsed.
type factoryFunc func() service.ComponentFactory

// executor is the slice of *service.Controller the commands need.
type executor interface {
	Execute(ctx context.Context, cmd service.Command) service.Result
}

// DemoWindowTitle names the window on the --dry-run desktop.
const DemoWindowTitle = "snapclick demo"

// newDryRunFactory wires the components to a simulated desktop holding one
// window, so every command can be exercised without touching real input.
func newDryRunFactory() service.ComponentFactory {
	desktop := fake.New()
	desktop.Add(fake.Window{
		ID:    0x1001,
		Title: DemoWindowTitle,
		PID:   4242,
		Rect:  schemas.Rect{Left: 100, Top: 100, Right: 900, Bottom: 700},
	})
	return service.NewComponentFactoryWithDesktop(desktop)
}

// withComponents builds the component graph, runs fn and always shuts the
// graph down afterwards.
func withComponents(cmd *cobra.Command, factory service.ComponentFactory, fn func(ctx context.Context, comps *service.Components) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	if factory == nil {
		return errors.New("component factory cannot be nil")
	}

	comps, err := factory.Create(ctx, cfg, observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer comps.Shutdown()
	return fn(ctx, comps)
}

// invoke runs a single controller command and prints its data as JSON.
func invoke(cmd *cobra.Command, factory service.ComponentFactory, name string, params interface{}) error {
	return withComponents(cmd, factory, func(ctx context.Context, comps *service.Components) error {
		_, err := execute(ctx, cmd.OutOrStdout(), comps.Controller, name, params)
		return err
	})
}

// execute sends one command and prints the data of a successful result.
// A failed result becomes the returned error.
func execute(ctx context.Context, out io.Writer, exec executor, name string, params interface{}) (service.Result, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return service.Result{}, fmt.Errorf("failed to encode params: %w", err)
		}
		raw = b
	}

	res := exec.Execute(ctx, service.Command{Name: name, Params: raw})
	if !res.Success {
		return res, errors.New(res.Error)
	}
	if res.Data != nil {
		if err := printJSON(out, res.Data); err != nil {
			return res, err
		}
	}
	return res, nil
}

func printJSON(out io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
