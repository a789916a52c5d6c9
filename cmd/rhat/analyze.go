package main

import (
	"context"
	"fmt"
	"time"

	"rhat/internal/adapters/archive"
	"rhat/internal/modkit"
	"rhat/internal/platform/config"
	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"
	"rhat/internal/platform/metrics"
	phttp "rhat/internal/platform/net/http"
	"rhat/internal/platform/store"
	"rhat/internal/services/analyze/domain"
	"rhat/internal/services/analyze/module"
	"rhat/internal/services/analyze/service"
	"rhat/internal/services/cluster"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const missingRule = "A rule must be given with --plugin."

type analyzeFlags struct {
	input         string
	plugin        string
	clusterSpec   string
	workers       int
	partitionSize int
	timeout       time.Duration
	tmpDir        string
	format        string
	metricsAddr   string
}

func (f *analyzeFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.input, "input", "i", "input.txt", "file listing one archive path or URL per line")
	fs.StringVarP(&f.plugin, "plugin", "p", "", "qualified name of the rule to evaluate")
	fs.StringVarP(&f.clusterSpec, "cluster", "c", "", "worker spec YAML (default: one local worker)")
	fs.IntVarP(&f.workers, "workers", "n", 0, "scale the pool to n workers after bootstrap (0 keeps the worker count from --cluster)")
	fs.IntVar(&f.partitionSize, "partition-size", service.DefaultPartitionSize, "archives per task")
	fs.DurationVar(&f.timeout, "timeout", 0, "per archive extraction timeout (0 = none)")
	fs.StringVar(&f.tmpDir, "tmp-dir", "", "scratch directory for extraction")
	fs.StringVar(&f.format, "format", string(domain.FormatJSON), "report format: json or table")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address during the run")
}

// options layers changed flags over the env config
func (f analyzeFlags) options(cmd *cobra.Command, cfg config.Conf) (module.Options, error) {
	opts := module.FromConfig(cfg)
	fs := cmd.Flags()
	if fs.Changed("input") {
		opts.Input = f.input
	}
	if fs.Changed("partition-size") {
		opts.PartitionSize = f.partitionSize
	}
	if fs.Changed("timeout") {
		opts.Timeout = f.timeout
	}
	if fs.Changed("tmp-dir") {
		opts.TmpDir = f.tmpDir
	}
	if fs.Changed("metrics-addr") {
		opts.MetricsAddr = f.metricsAddr
	}
	if fs.Changed("format") {
		format, err := service.ParseFormat(f.format)
		if err != nil {
			return opts, err
		}
		opts.Format = format
	}
	if opts.PartitionSize < 1 {
		return opts, perr.WithField(perr.InvalidArgf("partition size must be at least 1"), "partition-size")
	}
	return opts, nil
}

func loadSpec(path string, cfg config.Conf) (cluster.Spec, error) {
	if path == "" {
		path = cfg.Prefix("CORE_CLUSTER_").MayPath("SPEC", "")
	}
	if path == "" {
		return cluster.DefaultSpec(), nil
	}
	return cluster.LoadSpec(path)
}

// ruleMissing reports lookups that end the run without an error
func ruleMissing(err error) bool {
	return perr.IsCode(err, perr.ErrorCodeNotFound) || perr.IsCode(err, perr.ErrorCodeNotARule)
}

func message(err error) string {
	if e, ok := perr.As(err); ok {
		return e.Message()
	}
	return err.Error()
}

func runAnalyze(cmd *cobra.Command, f analyzeFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := logger.Named("rhat")

	if f.plugin == "" {
		fmt.Fprintln(out, missingRule)
		return nil
	}

	cfg := config.New()
	opts, err := f.options(cmd, cfg)
	if err != nil {
		return err
	}
	if _, err := module.NewEvaluator(opts, 1, nil).Schema(f.plugin); err != nil {
		if ruleMissing(err) {
			fmt.Fprintln(out, message(err))
			return nil
		}
		return err
	}
	archives, err := archive.LoadList(opts.Input)
	if err != nil {
		return err
	}
	spec, err := loadSpec(f.clusterSpec, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	st, err := store.Open(ctx, store.FromConfig(cfg, "rhat"), store.WithLogger(*log))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(context.Background()); cerr != nil {
			log.Warn().Err(cerr).Msg("store close failed")
		}
	}()

	client, err := cluster.Open(ctx, spec, module.Factory(opts, m))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("cluster close failed")
		}
	}()
	if f.workers > 0 {
		if err := client.Scale(ctx, f.workers); err != nil {
			return err
		}
	}
	m.SetWorkers(client.Workers())

	deps := modkit.Deps{Log: *log, Cfg: cfg, Metrics: m}.FromStore(st)
	mod, err := module.New(ctx, deps, client, opts)
	if err != nil {
		return err
	}

	if opts.MetricsAddr != "" {
		srv := phttp.NewServer(opts.MetricsAddr,
			phttp.Ops(m.Handler(), probe(client, st), false),
			func(mx *chi.Mux) { mod.MountRoutes(mx) },
		)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info().Str("addr", srv.Addr()).Msg("ops server listening")
	}

	runner := modkit.MustPortsOf[domain.RunnerPort](mod)
	rep, err := runner.Analyze(ctx, opts.Input, archives, f.plugin)
	if err != nil {
		if ruleMissing(err) {
			fmt.Fprintln(out, message(err))
			return nil
		}
		return err
	}
	return service.Emit(out, rep, opts.Format)
}

func probe(client cluster.Client, st *store.Store) phttp.Probe {
	return func() (int, error) {
		n := client.Workers()
		if n == 0 {
			return 0, perr.Unavailablef("no workers")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return n, st.Guard(ctx)
	}
}
