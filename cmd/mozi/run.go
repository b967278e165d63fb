package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/gcroot/engine"
	"github.com/wippyai/gcroot/gcsafe"
	"github.com/wippyai/gcroot/trace"
)

var runCmd = &cobra.Command{
	Use:   "run <module.wasm> [-- wasi-args...]",
	Short: "Instantiate a module and call one of its exports",
	Long: `Run compiles and instantiates a module, then calls the function named by
--func, or _start, main or run when present. Functions imported from env
are served by host functions that return their first argument. Arguments
after the module path are passed to WASI programs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExecution,
}

func init() {
	runCmd.Flags().String("func", "", "exported function to call")
	runCmd.Flags().StringSlice("arg", nil, "numeric argument to pass (repeatable)")
	runCmd.Flags().String("config", "", "TOML configuration file")
	runCmd.Flags().Bool("wasi", false, "serve wasi_snapshot_preview1 imports")
	runCmd.Flags().Int("gc-threshold", -1, "collect after this many allocations (0 disables)")
	runCmd.Flags().Int("parallel", 1, "run the module on this many independent runtimes")
	runCmd.Flags().Bool("stats", false, "print heap and root statistics")
	runCmd.Flags().Bool("metrics", false, "print Prometheus metrics in text format")
	runCmd.Flags().BoolP("interactive", "i", false, "pick the function and arguments in a TUI")
}

type runOptions struct {
	path     string
	wasm     []byte
	cfg      engine.Config
	fn       string
	args     []trace.Value
	parallel int
	stats    bool
	metrics  bool
	log      *zap.Logger
	stdin    io.Reader
	stderr   io.Writer
}

func runExecution(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	cfg.Args = append(cfg.Args, args[1:]...)

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	wasm, err := readModule(path)
	if err != nil {
		return err
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if !isTerminal(os.Stdout) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(path, wasm, cfg, log)
	}

	fn, _ := cmd.Flags().GetString("func")
	rawArgs, _ := cmd.Flags().GetStringSlice("arg")
	values, err := parseArgs(rawArgs)
	if err != nil {
		return err
	}
	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
	}
	stats, _ := cmd.Flags().GetBool("stats")
	metrics, _ := cmd.Flags().GetBool("metrics")

	return runModule(cmd.Context(), runOptions{
		path:     path,
		wasm:     wasm,
		cfg:      cfg,
		fn:       fn,
		args:     values,
		parallel: parallel,
		stats:    stats,
		metrics:  metrics,
		log:      log,
		stdin:    os.Stdin,
		stderr:   os.Stderr,
	}, cmd.OutOrStdout())
}

// configFromFlags loads --config and applies the flags that override it.
func configFromFlags(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = engine.LoadConfig(path); err != nil {
			return engine.Config{}, err
		}
	}
	if cmd.Flags().Changed("wasi") {
		cfg.WASI, _ = cmd.Flags().GetBool("wasi")
	}
	if n, _ := cmd.Flags().GetInt("gc-threshold"); n >= 0 {
		cfg.GCThreshold = n
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, cfg.Validate()
}

// runModule runs the module on o.parallel runtimes and prints the results.
func runModule(ctx context.Context, o runOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reg := prometheus.NewRegistry()
	results := make([]string, o.parallel)
	stats := make([]engine.Stats, o.parallel)
	names := make([]string, o.parallel)
	stdout := &lockedWriter{w: out}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < o.parallel; i++ {
		names[i] = runtimeName(o.path, i, o.parallel)
		g.Go(func() error {
			opts := []engine.Option{
				engine.WithLogger(o.log),
				engine.WithName(names[i]),
			}
			// only the first runtime reads stdin
			var stdin io.Reader
			if i == 0 {
				stdin = o.stdin
			}
			opts = append(opts, engine.WithStdio(stdin, stdout, o.stderr))
			if o.metrics {
				opts = append(opts, engine.WithMetrics(engine.NewMetrics(reg, names[i])))
			}

			rt, err := engine.New(gctx, o.cfg, opts...)
			if err != nil {
				return err
			}
			results[i], err = execute(gctx, rt, o)
			if o.stats {
				var sErr error
				stats[i], sErr = rt.Stats(gctx)
				err = multierr.Append(err, sErr)
			}
			return multierr.Append(err, rt.Close(context.Background()))
		})
	}
	err := g.Wait()

	for i, res := range results {
		if res == "" {
			continue
		}
		if o.parallel > 1 {
			fmt.Fprintf(out, "%s: ", names[i])
		}
		fmt.Fprintln(out, res)
	}
	if o.stats {
		for i, st := range stats {
			printStats(out, names[i], st)
		}
	}
	if o.metrics {
		err = multierr.Append(err, dumpMetrics(reg, out))
	}
	return err
}

// execute loads the module on rt and calls its entry function. It returns
// the printed form of the result, or "" when the function returns nothing.
func execute(ctx context.Context, rt *engine.Runtime, o runOptions) (string, error) {
	var result string
	err := rt.Do(ctx, func(cx *gcsafe.Context) error {
		exports, funcs, err := load(cx, o.wasm, o.log)
		if err != nil {
			return err
		}
		defer exports.Release()

		name := o.fn
		if name == "" {
			var ok bool
			if name, ok = pickEntry(funcs); !ok {
				return fmt.Errorf("no entry point among %d exported functions, use --func", len(funcs))
			}
		}
		o.log.Debug("calling export", zap.String("func", name), zap.Int("args", len(o.args)))

		v, err := call(cx, exports, name, o.args)
		if err != nil {
			return err
		}
		if !v.IsUndefined() {
			result = v.String()
		}
		return nil
	})
	return result, err
}

func runtimeName(path string, i, n int) string {
	base := filepath.Base(path)
	if n == 1 {
		return base
	}
	return fmt.Sprintf("%s#%d", base, i)
}

var statsHeader = color.New(color.Bold)

func printStats(w io.Writer, name string, st engine.Stats) {
	statsHeader.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "  collections  %d\n", st.Heap.Collections)
	fmt.Fprintf(w, "  allocated    %d\n", st.Heap.Allocated)
	fmt.Fprintf(w, "  finalized    %d\n", st.Heap.Finalized)
	fmt.Fprintf(w, "  live cells   %d\n", st.Heap.Live)
	fmt.Fprintf(w, "  roots        %d (peak %d)\n", st.Roots, st.PeakRoots)
	fmt.Fprintf(w, "  instances    %d\n", st.Instances)
}

func dumpMetrics(g prometheus.Gatherer, w io.Writer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// lockedWriter serializes guest output of parallel runtimes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
