package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"

	"github.com/flightlabs/aerodb/config"
	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/query"
	"github.com/flightlabs/aerodb/replication"
)

// join keeps trying to merge into the cluster until it succeeds or the
// context is cancelled. Peers may come up in any order, so failures are
// expected at first; the backoff keeps a lonely node from hammering them.
func join(ctx context.Context, cluster *membership.Cluster, logger kitlog.Logger) {
	var (
		timeout = 10 * time.Second
		backoff = 1 * time.Second
		max     = 30 * time.Second
	)

	for {
		err := func() error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return cluster.Join(ctx)
		}()

		if err == nil {
			level.Info(logger).Log("msg", "joined cluster")
			return
		}

		level.Warn(logger).Log("msg", "failed to join cluster", "err", err)

		backoff = backoff * 2
		if backoff > max {
			backoff = max
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			continue
		}
	}
}

func main() {
	p := flags.NewParser(&opts, flags.Default)

	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			fmt.Println("cli error:", err)
		}

		os.Exit(2)
	}

	logger, closeLogger := setupLogger()

	topology, err := config.LoadCluster(opts.Cluster.Topology)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load topology", "err", err)
		os.Exit(1)
	}

	secret, err := config.SecretFromEnv()
	if err != nil {
		level.Error(logger).Log("msg", "failed to read cluster secret", "err", err)
		os.Exit(1)
	}

	wg := sync.WaitGroup{}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Initialize all components.
	cluster, closeCluster := setupCluster(topology, secret, logger)
	engine, closeEngine := setupEngine(logger)

	registry := nodeapi.NewRegistry(nil)

	coordinator := replication.NewCoordinator(replication.Config{
		Cluster:      cluster,
		Registry:     registry,
		Engine:       engine,
		Logger:       logger,
		WriteTimeout: time.Millisecond * time.Duration(opts.Replication.WriteTimeout),
		ReadTimeout:  time.Millisecond * time.Duration(opts.Replication.ReadTimeout),
	})

	executor := query.NewExecutor(engine, coordinator)

	_, closeNodeServer := setupNodeServer(&wg, cluster, engine, topology, logger)
	_, closeClientServer := setupClientServer(&wg, executor, topology, logger)

	// Components shut down in the reverse of their dependency order: stop
	// taking client requests first, leave gossip, then flush storage.
	shutdownOrder := []shutdownFunc{
		closeClientServer,
		closeNodeServer,
		closeCluster,
		func(ctx context.Context) error {
			registry.Close()
			return nil
		},
		closeEngine,
		closeLogger,
	}

	joinCtx, cancelJoin := context.WithCancel(context.Background())
	go join(joinCtx, cluster, logger)

	level.Info(logger).Log(
		"msg", "node started",
		"ordinal", opts.Node.Ordinal,
		"node_id", cluster.SelfID(),
	)

	// Block until we receive a signal to shut down.
	<-interrupt
	cancelJoin()
	level.Info(logger).Log("msg", "received interrupt signal, shutting down")

	for _, f := range shutdownOrder {
		if err := f(context.Background()); err != nil {
			level.Error(logger).Log("msg", "failed to shutdown component", "err", err)
		}
	}

	wg.Wait()
}
