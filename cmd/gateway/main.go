package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/server"
	"main/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("gateway: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "config.json", "path to the gateway config file")
	flag.Parse()

	cfg, err := ops.Load(*configFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "market-gateway",
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		pg, err := conn.OpenPostgres(conn.PostgresOption{
			Host:     cfg.Recorder.Postgres.Host,
			Port:     cfg.Recorder.Postgres.Port,
			User:     cfg.Recorder.Postgres.User,
			Password: cfg.Recorder.Postgres.Password,
			Database: cfg.Recorder.Postgres.Database,
			SSLMode:  cfg.Recorder.Postgres.SSLMode,
		})
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()

		rec, err = recorder.New(pg, recorder.Config{QueueSize: cfg.Recorder.QueueSize})
		if err != nil {
			return err
		}
		rec.Start(ctx)
		defer rec.Close()
	}

	srvCfg := server.Config{
		Port:              cfg.Server.Port,
		MaxClients:        cfg.Server.MaxClients,
		HeartbeatInterval: time.Duration(cfg.Server.HeartbeatSeconds) * time.Second,
		Username:          cfg.Auth.Username,
		Password:          cfg.Auth.Password,
		Symbols:           cfg.Symbols,
	}

	var srv *server.Server
	if rec != nil {
		srv, err = server.New(srvCfg, rec)
	} else {
		srv, err = server.New(srvCfg, nil)
	}
	if err != nil {
		return err
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logs.Infof("gateway listening on %s", srv.Addr())

	if cfg.AdminSocket != "" {
		admin, err := ops.NewAdminServer(cfg.AdminSocket, srv)
		if err != nil {
			return err
		}
		if err := admin.Start(ctx); err != nil {
			return err
		}
		defer admin.Close()
	}

	// A feed that refuses to connect is logged and skipped so the server
	// keeps serving whatever feeds did come up.
	for _, exchange := range cfg.Exchanges {
		if err := srv.AddExchange(ctx, exchange); err != nil {
			logs.Errorf("exchange %s unavailable: %v", exchange.Name, err)
		}
	}

	<-ctx.Done()
	logs.Infof("shutting down")
	srv.Stop()
	return nil
}
