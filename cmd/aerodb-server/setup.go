package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/flightlabs/aerodb/clientapi"
	"github.com/flightlabs/aerodb/config"
	"github.com/flightlabs/aerodb/membership"
	"github.com/flightlabs/aerodb/nodeapi"
	"github.com/flightlabs/aerodb/query"
	"github.com/flightlabs/aerodb/replication"
	"github.com/flightlabs/aerodb/storage"
)

type shutdownFunc func(ctx context.Context) error

var noopShutdown = func(ctx context.Context) error { return nil }

func setupLogger() (kitlog.Logger, shutdownFunc) {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger, noopShutdown
}

func setupCluster(
	topology *config.Cluster, secret config.Secret, logger kitlog.Logger,
) (*membership.Cluster, shutdownFunc) {
	self, ok := topology.Node(opts.Node.Ordinal)
	if !ok {
		panic(fmt.Sprintf("ordinal %d is not in the topology file", opts.Node.Ordinal))
	}

	name := opts.Node.Name
	if name == "" {
		name = fmt.Sprintf("node%d", opts.Node.Ordinal)
	}

	conf := membership.DefaultConfig()
	conf.LocalNode = membership.Node{
		ID:       membership.NodeID(config.DeriveNodeID(secret, opts.Node.Ordinal)),
		Name:     name,
		Ordinal:  opts.Node.Ordinal,
		PeerAddr: self.PeerAddr(),
	}
	conf.ClusterID = config.ClusterFingerprint(secret)
	conf.Peers = topology.PeerAddrs(opts.Node.Ordinal)
	conf.Transport = nodeapi.NewGossipTransport(nil)
	conf.Logger = logger
	conf.GossipInterval = time.Millisecond * time.Duration(opts.Cluster.GossipInterval)
	conf.SuspectAfter = time.Millisecond * time.Duration(opts.Cluster.SuspectAfter)
	conf.DeadAfter = time.Millisecond * time.Duration(opts.Cluster.DeadAfter)
	conf.Fanout = opts.Cluster.Fanout

	cluster := membership.NewCluster(conf)
	cluster.Start()

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "stopping gossip")
		cluster.Stop()
		return nil
	}

	return cluster, shutdown
}

func setupEngine(logger kitlog.Logger) (*storage.Engine, shutdownFunc) {
	conf := storage.Config{
		DataDir:       opts.Storage.DataDir,
		FlushInterval: time.Millisecond * time.Duration(opts.Storage.FlushInterval),
		Logger:        logger,
	}

	engine, err := storage.Open(conf)
	if err != nil {
		panic(fmt.Sprintf("failed to open storage engine: %v", err))
	}

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "closing storage engine")
		return engine.Close()
	}

	return engine, shutdown
}

func setupNodeServer(
	wg *sync.WaitGroup,
	cluster *membership.Cluster,
	engine *storage.Engine,
	topology *config.Cluster,
	logger kitlog.Logger,
) (*nodeapi.Server, shutdownFunc) {
	self, _ := topology.Node(opts.Node.Ordinal)

	server := nodeapi.NewServer(cluster, replication.NewReplica(engine), logger)

	listener, err := net.Listen("tcp", self.PeerAddr())
	if err != nil {
		panic(fmt.Sprintf("failed to listen on %s: %v", self.PeerAddr(), err))
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := server.Serve(listener); err != nil {
			panic(fmt.Sprintf("internode server failed: %v", err))
		}
	}()

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "shutting down internode server")
		server.Shutdown()
		return nil
	}

	return server, shutdown
}

func setupClientServer(
	wg *sync.WaitGroup,
	executor *query.Executor,
	topology *config.Cluster,
	logger kitlog.Logger,
) (*clientapi.Server, shutdownFunc) {
	self, _ := topology.Node(opts.Node.Ordinal)

	server := clientapi.NewServer(executor, logger)

	listener, err := net.Listen("tcp", self.ClientAddr())
	if err != nil {
		panic(fmt.Sprintf("failed to listen on %s: %v", self.ClientAddr(), err))
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := server.Serve(listener); err != nil {
			panic(fmt.Sprintf("client server failed: %v", err))
		}
	}()

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "shutting down client server")
		server.Shutdown()
		return nil
	}

	return server, shutdown
}
