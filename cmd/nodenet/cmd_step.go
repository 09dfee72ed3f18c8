package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/nvandessel/nodenet/internal/logging"
	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/runner"
	"github.com/nvandessel/nodenet/internal/worldadapter"
	"github.com/spf13/cobra"
)

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step <nodenet>",
		Short: "Advance a nodenet by one or more steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				n, err := a.openNet(ctx, args[0])
				if err != nil {
					return err
				}

				stepped := 0
				var stepErr error
				var prompt *nodenet.UserPrompt
				for stepped < count {
					if stepErr = n.Step(ctx); stepErr != nil {
						break
					}
					stepped++
					if prompt = n.PendingPrompt(); prompt != nil {
						break
					}
				}
				if stepped > 0 {
					if err := a.save(ctx, n); err != nil {
						return errors.Join(stepErr, err)
					}
				}
				if stepErr != nil {
					return fmt.Errorf("step %d failed: %w", n.CurrentStep()+1, stepErr)
				}

				result := map[string]any{"current_step": n.CurrentStep(), "stepped": stepped}
				if prompt != nil {
					result["user_prompt"] = prompt
				}
				if err := emit(cmd, result, "Stepped %d, now at step %d\n", stepped, n.CurrentStep()); err != nil {
					return err
				}
				if jsonOut, _ := cmd.Flags().GetBool("json"); !jsonOut && prompt != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Node %s asks: %s\n", prompt.Node.UID, prompt.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntP("count", "n", 1, "Number of steps")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <nodenet>...",
		Short: "Step nodenets continuously until interrupted",
		Long: `Activate the given nodenets and step them on a fixed interval until
Ctrl-C, or until --max-steps ticks have run. Every nodenet is saved when
the run ends.

A nodenet whose node function fails is deactivated and the others keep
running. With native_modules.watch set, native module definitions are
reloaded into every nodenet when their files change.

The nodenets share an in-memory world: --source sets datasource values
read by Sensor nodes, and the values Actor nodes wrote to each --target
are printed at the end.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, _ := cmd.Flags().GetStringArray("source")
			targets, _ := cmd.Flags().GetStringArray("target")
			showMetrics, _ := cmd.Flags().GetBool("metrics")
			world, err := parseWorld(sources, targets)
			if err != nil {
				return err
			}

			return withApp(cmd, func(a *app) error {
				interval := a.cfg.Runner.StepInterval
				if cmd.Flags().Changed("interval") {
					interval, _ = cmd.Flags().GetDuration("interval")
				}
				maxSteps := a.cfg.Runner.MaxSteps
				if cmd.Flags().Changed("max-steps") {
					maxSteps, _ = cmd.Flags().GetInt("max-steps")
				}

				reader := sdkmetric.NewManualReader()
				mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
				defer mp.Shutdown(context.Background())

				stepLog := logging.NewStepLogger(a.cfg.Storage.DataDir, a.cfg.Logging.Level)
				defer stepLog.Close()

				r := runner.New(runner.Options{
					Interval:           interval,
					MaxTicks:           maxSteps,
					Logger:             a.logger,
					StepLog:            stepLog,
					NativeModuleDir:    a.cfg.NativeModules.Dir,
					WatchNativeModules: a.cfg.NativeModules.Watch,
				})

				ctx := cmd.Context()
				for _, uid := range args {
					data, err := a.repo.Load(ctx, uid)
					if err != nil {
						return fmt.Errorf("failed to load nodenet %q: %w", uid, err)
					}
					opts, err := a.options("", "")
					if err != nil {
						return err
					}
					opts.World = world
					opts.MeterProvider = mp
					n, err := nodenet.NewFromData(data, opts)
					if err != nil {
						return fmt.Errorf("failed to restore nodenet %q: %w", uid, err)
					}
					n.SetActive(true)
					r.Add(n)
				}

				runCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				sigCh := make(chan os.Signal, 1)
				notifySignals(sigCh)
				defer signal.Stop(sigCh)
				go func() {
					select {
					case <-sigCh:
						cancel()
					case <-runCtx.Done():
					}
				}()

				fmt.Fprintf(cmd.ErrOrStderr(), "Running %d nodenet(s) every %s. Press Ctrl-C to stop.\n", len(args), interval)
				runErr := r.Run(runCtx)
				if errors.Is(runErr, context.Canceled) {
					runErr = nil
				}

				// Saving uses a fresh context since runCtx is cancelled by now.
				var saveErr error
				for _, n := range r.Nets() {
					saveErr = errors.Join(saveErr, a.save(context.Background(), n))
				}

				jsonOut, _ := cmd.Flags().GetBool("json")
				out := cmd.OutOrStdout()
				result := map[string]any{}
				steps := map[string]int{}
				for _, n := range r.Nets() {
					steps[n.UID()] = n.CurrentStep()
					if !jsonOut {
						fmt.Fprintf(out, "%s: step %d, active=%v\n", n.UID(), n.CurrentStep(), n.IsActive())
					}
				}
				result["steps"] = steps
				if written := world.DrainDatatargets(); len(written) > 0 {
					result["datatargets"] = written
					if !jsonOut {
						for _, name := range sortedKeys(written) {
							fmt.Fprintf(out, "datatarget %s = %g\n", name, written[name])
						}
					}
				}
				if showMetrics {
					summary, err := collectStepMetrics(context.Background(), reader)
					if err != nil {
						return err
					}
					result["metrics"] = summary
					if !jsonOut {
						fmt.Fprintf(out, "steps=%d failures=%d mean_duration_ms=%.3f\n",
							summary.Steps, summary.Failures, summary.MeanDurationMS)
					}
				}
				if jsonOut {
					if err := printJSON(cmd, result); err != nil {
						return err
					}
				}
				return errors.Join(runErr, saveErr)
			})
		},
	}
	cmd.Flags().Duration("interval", 0, "Pause between steps (default: runner.step_interval)")
	cmd.Flags().Int("max-steps", 0, "Stop after this many steps (default: runner.max_steps, 0 = unlimited)")
	cmd.Flags().StringArray("source", nil, "Datasource value as name=value (repeatable)")
	cmd.Flags().StringArray("target", nil, "Datatarget collecting Actor output (repeatable)")
	cmd.Flags().Bool("metrics", false, "Print step metrics when the run ends")
	return cmd
}

// parseWorld builds the shared world from name=value datasource pairs and
// datatarget names.
func parseWorld(pairs, targets []string) (*worldadapter.Memory, error) {
	world := worldadapter.NewMemory(nil, targets)
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid datasource %q (want name=value)", p)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid datasource value %q: %w", p, err)
		}
		world.SetDatasource(name, v)
	}
	return world, nil
}

// stepMetrics summarizes the nodenet step instruments.
type stepMetrics struct {
	Steps          int64   `json:"steps"`
	Failures       int64   `json:"failures"`
	MeanDurationMS float64 `json:"mean_duration_ms"`
}

func collectStepMetrics(ctx context.Context, reader *sdkmetric.ManualReader) (stepMetrics, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return stepMetrics{}, fmt.Errorf("failed to collect metrics: %w", err)
	}
	var out stepMetrics
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				switch m.Name {
				case "nodenet.steps":
					out.Steps += total
				case "nodenet.step.failures":
					out.Failures += total
				}
			case metricdata.Histogram[float64]:
				if m.Name != "nodenet.step.duration" {
					continue
				}
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				if count > 0 {
					out.MeanDurationMS = sum / float64(count)
				}
			}
		}
	}
	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
