package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/atomtable/pkg/atom"
	"github.com/Sumatoshi-tech/atomtable/pkg/observability"
)

const (
	spanBenchRun = "bench.run"

	benchTableName = "bench"

	// cancelCheckEvery is how many interns a worker runs between context checks.
	cancelCheckEvery = 1 << 10

	metricsPath          = "/metrics"
	metricsReadTimeout   = 5 * time.Second
	metricsShutdownGrace = 2 * time.Second
)

// Convergence failures reported by bench.
var (
	ErrUnstableID    = errors.New("string changed id during the run")
	ErrAtomCount     = errors.New("table size does not match pool size")
	ErrDuplicateID   = errors.New("two pool strings share an id")
	ErrRoundTrip     = errors.New("lookup did not return the interned string")
	ErrInvalidBench  = errors.New("workers, iterations and pool must be positive")
	ErrMetricsServer = errors.New("metrics server failed")
)

type benchOptions struct {
	workers     int
	iterations  int
	pool        int
	metricsAddr string
	noColor     bool
}

type benchResult struct {
	opts    benchOptions
	elapsed time.Duration
	stats   atom.Stats
	heap    uint64
	err     error
}

func newBenchCommand(a *app) *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Stress the table from many goroutines and verify convergence",
		Long: `Starts --workers goroutines that each intern --iterations strings drawn
from a pool of --pool distinct strings, then checks that every string got
exactly one id, that ids are dense, and that every id maps back to its string.`,
		RunE: a.wrap(observability.ModeBench, func(cmd *cobra.Command, _ []string) error {
			opts = a.benchDefaults(cmd, opts)

			if opts.workers <= 0 || opts.iterations <= 0 || opts.pool <= 0 {
				return fmt.Errorf("%w: workers=%d iterations=%d pool=%d",
					ErrInvalidBench, opts.workers, opts.iterations, opts.pool)
			}

			if opts.noColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}

			return a.runBench(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		}),
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "concurrent goroutines (default from config)")
	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", 0, "interns per worker (default from config)")
	cmd.Flags().IntVarP(&opts.pool, "pool", "p", 0, "distinct strings (default from config)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	return cmd
}

func (a *app) benchDefaults(cmd *cobra.Command, opts benchOptions) benchOptions {
	flags := cmd.Flags()

	if !flags.Changed("workers") {
		opts.workers = a.cfg.Bench.Workers
	}

	if !flags.Changed("iterations") {
		opts.iterations = a.cfg.Bench.Iterations
	}

	if !flags.Changed("pool") {
		opts.pool = a.cfg.Bench.Pool
	}

	if !flags.Changed("metrics-addr") {
		opts.metricsAddr = a.cfg.Telemetry.MetricsAddr
	}

	return opts
}

func (a *app) runBench(ctx context.Context, out, errOut io.Writer, opts benchOptions) error {
	ctx, span := a.providers.Tracer.Start(ctx, spanBenchRun, trace.WithAttributes(
		attribute.Int("bench.workers", opts.workers),
		attribute.Int("bench.iterations", opts.iterations),
		attribute.Int("bench.pool", opts.pool),
	))
	defer span.End()

	tbl := a.newTable(benchTableName)

	if opts.metricsAddr != "" {
		stop, err := a.serveMetrics(ctx, errOut, opts.metricsAddr, tbl)
		if err != nil {
			return err
		}
		defer stop()
	}

	pool := benchPool(opts.pool)

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	start := time.Now()
	err := stress(ctx, tbl, pool, opts.workers, opts.iterations)
	elapsed := time.Since(start)

	if err == nil {
		err = verify(tbl, pool, min(opts.pool, opts.iterations+opts.workers-1))
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	a.metrics.RecordInterned(ctx, "bench", opts.workers*opts.iterations)

	res := benchResult{
		opts:    opts,
		elapsed: elapsed,
		stats:   tbl.Stats(),
		heap:    after.HeapAlloc - min(after.HeapAlloc, before.HeapAlloc),
		err:     err,
	}

	writeBenchReport(out, res)

	if err != nil {
		span.RecordError(err)
		a.logger.ErrorContext(ctx, "bench failed", "error", err)

		return err
	}

	a.logger.InfoContext(ctx, "bench converged",
		"atoms", res.stats.Atoms, "elapsed", elapsed, "hit_rate", res.stats.HitRate())

	return nil
}

func benchPool(n int) []string {
	pool := make([]string, n)
	for i := range pool {
		pool[i] = "atom-" + strconv.Itoa(i)
	}

	return pool
}

// stress runs workers goroutines. Each walks the pool from its own offset so
// that new strings race between workers, and checks that a string never
// changes id.
func stress(ctx context.Context, tbl *atom.Table, pool []string, workers, iterations int) error {
	g, ctx := errgroup.WithContext(ctx)

	for w := range workers {
		g.Go(func() error {
			h := tbl.Pin()
			seen := make([]atom.ID, len(pool))
			known := make([]bool, len(pool))

			for i := range iterations {
				if i%cancelCheckEvery == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				k := (i + w) % len(pool)
				id := h.Intern(pool[k])

				if !known[k] {
					seen[k], known[k] = id, true

					continue
				}

				if seen[k] != id {
					return fmt.Errorf("%w: %q was %d, now %d", ErrUnstableID, pool[k], seen[k], id)
				}
			}

			return nil
		})
	}

	return g.Wait()
}

// verify checks the converged table against the pool. Worker w starts at
// offset w, so together the workers touch the first want pool strings.
func verify(tbl *atom.Table, pool []string, want int) error {
	present := 0
	ids := make(map[atom.ID]string, len(pool))

	for _, s := range pool {
		id, ok := tbl.TryLookupID(s)
		if !ok {
			continue
		}

		present++

		if other, dup := ids[id]; dup {
			return fmt.Errorf("%w: %q and %q are both %d", ErrDuplicateID, other, s, id)
		}

		ids[id] = s

		text, err := tbl.Lookup(id)
		if err != nil || text != s {
			return fmt.Errorf("%w: id %d gave %q for %q (%v)", ErrRoundTrip, id, text, s, err)
		}
	}

	if tbl.Len() != want || present != want {
		return fmt.Errorf("%w: table has %d, found %d pool strings, want %d", ErrAtomCount, tbl.Len(), present, want)
	}

	for id := range ids {
		if int(id) >= present {
			return fmt.Errorf("%w: id %d outside [0, %d)", ErrAtomCount, id, present)
		}
	}

	return nil
}

func (a *app) serveMetrics(ctx context.Context, errOut io.Writer, addr string, tbl *atom.Table) (func(), error) {
	handler, mp, err := observability.PrometheusHandler()
	if err != nil {
		return nil, err
	}

	tables := map[string]observability.TableStatsProvider{benchTableName: tbl}
	if err := observability.RegisterTableMetrics(mp.Meter(meterName), tables); err != nil {
		return nil, err
	}

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetricsServer, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadTimeout}
	done := make(chan struct{})

	go func() {
		defer close(done)

		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", serveErr)
		}
	}()

	fmt.Fprintf(errOut, "serving metrics on http://%s%s\n", ln.Addr(), metricsPath)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownGrace)
		defer cancel()

		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Warn("metrics server shutdown failed", "error", shutdownErr)
		}

		<-done
	}, nil
}

func writeBenchReport(w io.Writer, res benchResult) {
	ops := int64(res.opts.workers) * int64(res.opts.iterations)
	rate := float64(ops) / max(res.elapsed.Seconds(), 1e-9)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Workers", res.opts.workers},
		{"Interns", humanize.Comma(ops)},
		{"Pool", humanize.Comma(int64(res.opts.pool))},
		{"Atoms", humanize.Comma(int64(res.stats.Atoms))},
		{"Elapsed", res.elapsed.Round(time.Microsecond)},
		{"Throughput", humanize.SIWithDigits(rate, 2, "ops/s")},
		{"Hit rate", fmt.Sprintf("%.2f%%", res.stats.HitRate()*percentScale)},
		{"Heap growth", humanize.Bytes(res.heap)},
		{"Shards", res.stats.Shards},
	})
	tw.Render()

	if res.err != nil {
		color.New(color.FgRed).Fprintf(w, "FAIL: %v\n", res.err)

		return
	}

	color.New(color.FgGreen).Fprintf(w, "PASS: %d workers converged on %d atoms\n", res.opts.workers, res.stats.Atoms)
}
