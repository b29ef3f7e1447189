package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"inspectionDispatch/internal/config"
	"inspectionDispatch/internal/db"
	"inspectionDispatch/internal/dispatch"
	grpcserver "inspectionDispatch/internal/grpc"
	"inspectionDispatch/internal/httpapi"
	"inspectionDispatch/internal/lock"
	"inspectionDispatch/internal/logger"
	"inspectionDispatch/internal/metrics"
	"inspectionDispatch/internal/notify"
	"inspectionDispatch/repository"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC API and the notification websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *cfgPath)
		},
	}
}

func newLogger(cfg *config.Config, component string) logger.Logger {
	return logger.NewWithOptions(component, logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
}

// newLocker picks the redis locker when an address is configured so several
// replicas can share one database.
func newLocker(ctx context.Context, cfg *config.Config, log logger.Logger) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	log.Infof("using redis locker at %s", cfg.Redis.Addr)
	return lock.NewRedisLocker(client, time.Duration(cfg.Redis.LockTTL)*time.Second), func() { _ = client.Close() }, nil
}

func runServe(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithDefaults(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg, "dispatchd")
	log.Infof("configuration loaded: %v", cfg)

	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warnf("close db: %v", err)
		}
	}()

	sink, err := metrics.NewPromSink(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	hub := notify.NewHub()
	var bridges []notify.Bridge
	if cfg.MQTT.Broker != "" {
		bridge, err := notify.DialMQTT(notify.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		log.Infof("mqtt bridge connected to %s", cfg.MQTT.Broker)
		bridges = append(bridges, bridge)
	}
	fanout := notify.NewFanout(hub, newLogger(cfg, "notify"), sink, bridges...)
	defer fanout.Close()

	svc := dispatch.New(d,
		dispatch.WithLocker(locker),
		dispatch.WithNotifier(fanout),
		dispatch.WithRecorder(sink),
		dispatch.WithLogger(newLogger(cfg, "dispatch")),
		dispatch.WithMaxDistanceKm(cfg.Dispatch.MaxDistanceKm),
		dispatch.WithDefaultRegion(cfg.Dispatch.DefaultRegion),
	)

	shutdownGRPC, err := grpcserver.StartGRPC(cfg, svc, repository.NewUserRepository(d), newLogger(cfg, "grpc"))
	if err != nil {
		return fmt.Errorf("start grpc: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Options{Hub: hub, JWTSecret: cfg.Auth.JWTSecret, Log: newLogger(cfg, "http")})
	httpErr := make(chan error, 1)
	go func() { httpErr <- httpapi.Serve(ctx, cfg.HTTP.Address, router, log) }()

	select {
	case <-ctx.Done():
		log.Infof("shutting down")
	case err = <-httpErr:
		if err != nil {
			log.Errorf("http server: %v", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := shutdownGRPC(shutdownCtx); serr != nil && !errors.Is(serr, context.DeadlineExceeded) {
		log.Warnf("grpc shutdown: %v", serr)
	}
	hub.Close()
	return err
}
