package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/intercomd/internal/auth"
	"github.com/joshp123/intercomd/internal/config"
	"github.com/joshp123/intercomd/internal/core"
	"github.com/joshp123/intercomd/internal/hass"
	"github.com/joshp123/intercomd/internal/server"
	"github.com/joshp123/intercomd/plugins/netatmo"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error); overrides core.log_level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}

	level := cfg.Core.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	initLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plugin, err := buildNetatmo(cfg)
	if err != nil {
		fatal("build netatmo plugin", err)
	}

	plugins := []core.Plugin{plugin}
	if err := core.ValidatePlugins(plugins); err != nil {
		fatal("validate plugins", err)
	}

	// Initial discovery primes the door cache and the MQTT bridge. A
	// transient failure here is not fatal; discovery retries lazily on
	// the first door listing.
	if doors, err := plugin.Discover(ctx); err != nil {
		slog.Warn("initial door discovery failed", "error", err)
	} else {
		slog.Info("discovered door modules", "count", len(doors))
	}

	if cfg.MQTT != nil {
		if err := startBridge(ctx, cfg.MQTT, plugin); err != nil {
			// The daemon stays useful over HTTP even when the broker
			// is unreachable.
			slog.Error("mqtt bridge failed to start", "error", err)
		}
	}

	host := auth.MetricsCollectors()
	host = append(host, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "intercomd_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))
	registry := core.MetricsRegistry(plugins, host...)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler)
	mux.Handle("/metrics", server.MetricsHandler(registry))
	mux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(plugins)))
	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, mux)
	go func() {
		slog.Info("http server listening", "addr", cfg.Core.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("http serve", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Server.Shutdown(shutdownCtx)
}

func buildNetatmo(cfg *config.Config) (*netatmo.Plugin, error) {
	password, err := config.ReadSecretFile(cfg.Netatmo.PasswordFile)
	if err != nil {
		return nil, err
	}
	clientSecret, err := config.ReadSecretFile(cfg.Netatmo.ClientSecretFile)
	if err != nil {
		return nil, err
	}

	var blobStore auth.BlobStore
	if cfg.Blob != nil {
		accessKey, err := config.ReadSecretFile(cfg.Blob.AccessKeyFile)
		if err != nil {
			return nil, err
		}
		secretKey, err := config.ReadSecretFile(cfg.Blob.SecretKeyFile)
		if err != nil {
			return nil, err
		}
		blobStore, err = auth.NewS3Store(auth.S3Options{
			Endpoint:  cfg.Blob.Endpoint,
			Bucket:    cfg.Blob.Bucket,
			Prefix:    cfg.Blob.Prefix,
			Region:    cfg.Blob.Region,
			AccessKey: accessKey,
			SecretKey: secretKey,
		})
		if err != nil {
			return nil, err
		}
	}

	pluginCfg := netatmo.Config{
		AuthURL:     cfg.Netatmo.AuthURL,
		APIURL:      cfg.Netatmo.APIURL,
		SetStateURL: cfg.Netatmo.SetStateURL,
	}.WithDefaults()

	manager, err := auth.NewManager(
		auth.Declaration{
			Provider:  "netatmo",
			TokenURL:  pluginCfg.AuthURL,
			StatePath: cfg.Netatmo.StatePath,
		},
		auth.Credentials{
			Username:     cfg.Netatmo.Username,
			Password:     password,
			ClientID:     cfg.Netatmo.ClientID,
			ClientSecret: clientSecret,
		},
		blobStore,
	)
	if err != nil {
		return nil, err
	}

	resetDelay := netatmo.DefaultResetDelay
	if cfg.MQTT != nil {
		resetDelay = time.Duration(cfg.MQTT.ResetSeconds) * time.Second
	}

	return netatmo.NewPlugin(pluginCfg, manager, resetDelay), nil
}

func startBridge(ctx context.Context, cfg *config.MQTTConfig, plugin *netatmo.Plugin) error {
	password := ""
	if cfg.PasswordFile != "" {
		secret, err := config.ReadSecretFile(cfg.PasswordFile)
		if err != nil {
			return err
		}
		password = secret
	}

	bridge := hass.NewBridge(hass.Config{
		Broker:      cfg.Broker,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    password,
		TopicPrefix: cfg.TopicPrefix,
	}, plugin)

	return bridge.Start(ctx)
}

func initLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func fatal(op string, err error) {
	slog.Error(op, "error", err)
	os.Exit(1)
}
