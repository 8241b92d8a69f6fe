// Command arenastat runs a synthetic request workload on arenas and prints
// the arena metrics it collected.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pavanmanishd/arena/v2"
	"github.com/pavanmanishd/arena/v2/dense"
	"github.com/pavanmanishd/arena/v2/internal/pflagx"
	"github.com/pavanmanishd/arena/v2/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var (
	EnvPrefix       = "ARENASTAT_"
	Workers         = pflag.IntP("workers", "w", runtime.GOMAXPROCS(0), "concurrent workers, one arena each")
	Requests        = pflag.IntP("requests", "n", 1000, "requests per worker")
	Objects         = pflag.IntP("objects", "o", 64, "objects created per request")
	NormalBlockSize = pflag.Uint64("normal-block-size", arena.DefaultNormalBlockSize, "arena normal block size")
	HugeBlockSize   = pflag.Uint64("huge-block-size", arena.DefaultHugeBlockSize, "arena huge block size")
	InitBlockSize   = pflag.Uint64("init-block-size", arena.DefaultSuggestedInitBlockSize, "arena first block size")
	Allocator       = pflag.StringP("allocator", "A", "heap", "block allocator (heap, mmap)")
	Budget          = pflag.Int64P("budget", "b", 0, "bytes of blocks outstanding across all workers (0 for no limit)")
	FlushEvery      = pflag.Int("flush-every", 100, "requests between metric flushes")
	Listen          = pflag.StringP("listen", "l", "", "serve prometheus metrics on this address until interrupted")
	LogLevel        = pflagx.LevelP("log-level", "L", slog.LevelInfo, "log level")
	LogJSON         = pflag.Bool("log-json", false, "use json logs")
	Help            = pflag.BoolP("help", "h", false, "show this help text")
)

func main() {
	if err := pflagx.ParseEnv(EnvPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	pflag.Parse()

	if *Help || pflag.NArg() != 0 {
		fmt.Printf("usage: %s [options]\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if *Help {
			return
		}
		os.Exit(2)
	}

	if *Workers < 1 || *Requests < 0 || *Objects < 0 || *FlushEvery < 1 || *Budget < 0 {
		fmt.Fprintf(os.Stderr, "error: workers and flush-every must be positive, other counts non-negative\n")
		os.Exit(2)
	}

	if *LogJSON {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: LogLevel,
		})))
	} else {
		slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: LogLevel,
		})))
	}
	slog.SetLogLoggerLevel(LogLevel.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("failed to run workload", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	alloc, budget, err := newAllocator(*Allocator, *Budget)
	if err != nil {
		return err
	}

	if *Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(metrics.Default, "arenastat"))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *Listen, Handler: mux}
		go func() {
			slog.Info("http: listening", "addr", *Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http: serve failed", "error", err)
			}
		}()
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				slog.Error("http: shutdown failed", "error", err)
			}
		}()
	}

	w := &workload{
		requests:   *Requests,
		objects:    *Objects,
		flushEvery: *FlushEvery,
		opts: arena.Options{
			NormalBlockSize:        *NormalBlockSize,
			HugeBlockSize:          *HugeBlockSize,
			SuggestedInitBlockSize: *InitBlockSize,
			Allocator:              alloc,
		},
		sink: metrics.Default,
	}
	start := time.Now()
	if err := w.run(ctx, *Workers); err != nil {
		return err
	}
	slog.Info("workload finished",
		"workers", *Workers,
		"requests", w.served.Load(),
		"failed", w.failed.Load(),
		"destroyed", destroyed.Load(),
		"elapsed", time.Since(start).Truncate(time.Millisecond))
	if budget != nil {
		slog.Info("budget", "limit", budget.Limit(), "outstanding", budget.Used())
	}
	fmt.Println(metrics.Default)

	if *Listen != "" {
		slog.Info("serving metrics until interrupted")
		<-ctx.Done()
	}
	return nil
}

// newAllocator resolves the allocator flag. budget is non-nil when a
// positive limit wraps the allocator.
func newAllocator(name string, limit int64) (arena.BlockAllocator, *arena.BudgetAllocator, error) {
	var alloc arena.BlockAllocator
	switch name {
	case "heap":
		alloc = arena.HeapAllocator{}
	case "mmap":
		alloc = arena.MmapAllocator{}
	default:
		return nil, nil, fmt.Errorf("unknown allocator %q", name)
	}
	if limit <= 0 {
		return alloc, nil, nil
	}
	budget := arena.NewBudgetAllocator(limit, alloc)
	return budget, budget, nil
}

// workload is a synthetic request load. opts is the template every worker
// arena is built from; its hooks are replaced per worker.
type workload struct {
	requests   int
	objects    int
	flushEvery int
	opts       arena.Options
	sink       *metrics.Global

	served atomic.Int64
	failed atomic.Int64
}

func (w *workload) run(ctx context.Context, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	for id := range workers {
		g.Go(func() error {
			return w.work(gctx, id)
		})
	}
	return g.Wait()
}

var destroyed atomic.Int64

// record is what a request creates per object. It lives in the arena and is
// destroyed when the arena resets.
type record struct {
	id   uint64
	size int
	hits int
}

func (r *record) Destroy() { destroyed.Add(1) }

var errExhausted = errors.New("arena exhausted")

func (w *workload) work(ctx context.Context, id int) error {
	local := metrics.NewLocal()
	opts := w.opts
	opts.Logger = slog.Default().With("worker", id)
	local.Install(&opts)
	a := arena.NewArena(opts)
	defer func() {
		a.Release()
		local.Flush(w.sink)
	}()

	rng := rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano())))
	for r := range w.requests {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.serve(a, rng, r)
		switch {
		case errors.Is(err, errExhausted):
			w.failed.Add(1)
			slog.Debug("request failed", "worker", id, "request", r, "error", err)
		case err != nil:
			return fmt.Errorf("worker %d request %d: %w", id, r, err)
		}
		w.served.Add(1)
		a.Reset()
		if (r+1)%w.flushEvery == 0 {
			local.Flush(w.sink)
		}
	}
	return nil
}

// serve creates the objects of one request in a and indexes them by name
// and by name hash.
func (w *workload) serve(a *arena.Arena, rng *rand.Rand, req int) error {
	byName := dense.New(dense.WithXXHash[string, *record]())
	byHash := dense.New(dense.WithAllocator[uint64, uint32](a))
	prefix := "req-" + strconv.Itoa(req) + "-obj-"

	for i := range w.objects {
		name, ok := arena.CopyString(a, prefix+strconv.Itoa(rng.IntN(w.objects)))
		if !ok {
			return errExhausted
		}
		rec := arena.Create(a, record{id: uint64(i), size: rng.IntN(256)})
		if rec == nil {
			return errExhausted
		}
		if payload := arena.CreateArray[byte](a, uint64(rec.size)); payload == nil {
			return errExhausted
		}

		p, inserted, err := byName.TryEmplace(name, rec)
		if err != nil {
			return err
		}
		if !inserted {
			(*p).hits++
		}
		if _, err := byHash.Insert(dense.StringHasher(name), uint32(i)); err != nil {
			if errors.Is(err, dense.ErrAllocationFailed) {
				return fmt.Errorf("%w: %w", errExhausted, err)
			}
			return err
		}
	}
	return nil
}
