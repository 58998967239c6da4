// Package main is the flowmq broker daemon: it sizes the shard pool, opens
// storage, starts one executor goroutine per shard, and serves the framed
// TCP protocol (plus an optional Prometheus /metrics endpoint).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/flowmq/flowmq/broker"
	"github.com/flowmq/flowmq/cmn"
	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/cmn/nlog"
	"github.com/flowmq/flowmq/metrics"
	"github.com/flowmq/flowmq/server"
	"github.com/flowmq/flowmq/session"
	"github.com/flowmq/flowmq/shard"
	"github.com/flowmq/flowmq/storage"
	"github.com/flowmq/flowmq/sys"
	"github.com/flowmq/flowmq/wire"
)

var (
	build     string
	buildtime string

	configPath string
)

func init() {
	flag.StringVar(&configPath, "config", "", "path to the flowmqd JSON configuration (optional)")
	nlog.InitFlags(flag.CommandLine)
}

func printVer() {
	fmt.Printf("flowmqd (build %s, %s)\n", build, buildtime)
}

func logFlush() {
	for {
		time.Sleep(time.Minute)
		nlog.Flush(false)
	}
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	flag.Parse()

	config := cmn.DefaultConfig()
	if configPath != "" {
		var err error
		if config, err = cmn.LoadConfig(configPath); err != nil {
			cos.ExitLogf("Failed to load configuration: %v", err)
		}
	}
	if config.Log.Dir != "" {
		nlog.SetPre(config.Log.Dir, "flowmqd")
	}
	nlog.SetTitle("flowmqd")

	sys.SetMaxProcs()
	numShards := config.NumShards()
	cmn.Rom.Set(numShards, config.Log.Verbosity, config.Keepalive())
	cos.InitShortID(uint64(os.Getpid()))

	st, err := storage.OpenBunt(config.Storage.Path)
	if err != nil {
		cos.ExitLogf("Failed to open storage at %q: %v", config.Storage.Path, err)
	}
	defer st.Close()

	m := metrics.New()
	clients := session.NewRegistry()
	router := shard.NewRouter(numShards, clients)

	brokers := make([]*broker.Broker, numShards)
	for i := range brokers {
		brokers[i] = broker.New(i, st, m, clients)
	}
	brokers[shard.ControlShard].MakeControl([]byte(config.Auth.SigningKey))
	if err := seedRootUser(brokers[shard.ControlShard], config); err != nil {
		cos.ExitLogf("Failed to seed root user: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < numShards; i++ {
		ex := shard.NewExecutor(i, brokers[i], router)
		group.Go(func() error {
			ex.Run(ctx)
			return nil
		})
	}
	nlog.Infof("started %d shard%s", numShards, cos.Plural(numShards))

	srv := server.New(config, router, clients)
	if err := srv.Listen(); err != nil {
		cos.ExitLogf("Failed to listen: %v", err)
	}
	group.Go(func() error { return srv.Serve(ctx) })

	if addr := config.Metrics.Address; addr != "" {
		group.Go(func() error { return serveMetrics(ctx, addr, m) })
	}
	go logFlush()

	if err := group.Wait(); err != nil {
		nlog.Errorf("terminated: %v", err)
		nlog.Flush(true)
		os.Exit(1)
	}
	nlog.Infoln("terminated")
	nlog.Flush(true)
}

// seedRootUser bootstraps the one account that can administer everything
// else; created only when the user table is empty so restarts with a
// persistent storage path do not collide.
func seedRootUser(b *broker.Broker, config *cmn.Config) error {
	if len(b.Users.All()) > 0 {
		return nil
	}
	rootPerms := wire.Permissions{
		Global: wire.PermManageStreams | wire.PermManageUsers | wire.PermManagePAT | wire.PermReadStats,
		Streams: map[uint32]wire.StreamPermissions{
			0: {ManageStream: true, Topics: map[uint32]wire.TopicPermissions{
				0: wire.PermSend | wire.PermRead | wire.PermManageTopic,
			}},
		},
	}
	_, err := b.Users.Create(config.Auth.RootUsername, config.Auth.RootPassword, wire.UserActive, rootPerms)
	return err
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	hs := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cmn.Rom.ShutdownWait())
		defer cancel()
		_ = hs.Shutdown(shutCtx)
	}()
	nlog.Infof("metrics on %s/metrics", addr)
	if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
