package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"rhat/internal/platform/config"
	"rhat/internal/platform/logger"
	"rhat/internal/platform/metrics"
	phttp "rhat/internal/platform/net/http"
	"rhat/internal/services/analyze/module"
	"rhat/internal/services/cluster"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

type workerFlags struct {
	natsURL     string
	subject     string
	queue       string
	threads     int
	name        string
	metricsAddr string
}

func defaultWorkerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func newWorkerCmd() *cobra.Command {
	var f workerFlags
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve evaluation tasks from a NATS queue group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), f)
		},
	}
	cfg := config.New().Prefix("SERVICE_NATS_")
	fs := cmd.Flags()
	fs.StringVar(&f.natsURL, "nats-url", cfg.MayString("URL", nats.DefaultURL), "NATS server to connect to")
	fs.StringVar(&f.subject, "subject", cluster.DefaultSubject, "task subject")
	fs.StringVar(&f.queue, "queue", cluster.DefaultQueue, "queue group shared by the workers")
	fs.IntVar(&f.threads, "threads", 1, "concurrent evaluations")
	fs.StringVar(&f.name, "name", defaultWorkerName(), "worker name used in logs and replies")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	return cmd
}

func runWorker(ctx context.Context, f workerFlags) error {
	log := logger.Named("worker").With().Str("worker", f.name).Logger()

	nc, err := nats.Connect(f.natsURL,
		nats.Name(f.name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return err
	}
	defer nc.Close()

	opts := module.FromConfig(config.New())
	m := metrics.New()
	m.SetWorkers(1)

	if f.metricsAddr != "" {
		srv := phttp.NewServer(f.metricsAddr, phttp.Ops(m.Handler(), func() (int, error) {
			if !nc.IsConnected() {
				return 0, nats.ErrConnectionClosed
			}
			return 1, nil
		}, false))
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	log.Info().Str("subject", f.subject).Int("threads", f.threads).Msg("worker ready")
	return cluster.Serve(ctx, nc, cluster.ServeOptions{
		Name:    f.name,
		Subject: f.subject,
		Queue:   f.queue,
		Threads: f.threads,
	}, module.TaskEvaluator(opts, m))
}
