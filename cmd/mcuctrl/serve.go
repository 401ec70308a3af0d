package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/mcuctrl/internal/api"
	"github.com/nerrad567/mcuctrl/internal/history"
	"github.com/nerrad567/mcuctrl/internal/infrastructure/influxdb"
	"github.com/nerrad567/mcuctrl/internal/infrastructure/mqtt"
	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/metrics"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
	"github.com/nerrad567/mcuctrl/internal/telemetry"
)

// observer receives both pass results and write events.
type observer interface {
	reconcile.Observer
	mcu.WriteObserver
}

// serve is the daemon body: it connects the optional outputs, opens the
// device and runs the reconciler until ctx is cancelled.
func (a *app) serve(ctx context.Context) error {
	log := a.log
	cfg := a.cfg
	log.Info("starting mcuctrl",
		"version", version,
		"commit", commit,
		"build_date", date,
		"bus", cfg.MCU.Bus,
		"address", cfg.MCU.Address,
	)

	m := metrics.New()
	observers := []observer{m}

	// History (optional)
	var repo history.Repository
	store, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := store.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		repo = store.repo
		observers = append(observers, store.recorder)
		if retention := a.retention(); retention > 0 {
			go a.pruneHistory(ctx, store.repo, retention)
		}
		log.Info("history database ready", "path", cfg.Database.Path)
	} else {
		log.Info("history disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		observers = append(observers, telemetry.NewMQTTPublisher(mqttClient, log.With("component", "mqtt")))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topic", mqttClient.Topics().Base(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB,
			influxdb.Target{Bus: cfg.MCU.Bus, Address: uint16(cfg.MCU.Address)})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, telemetry.NewInfluxRecorder(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.With("component", "websocket"))
		observers = append(observers, hub)
	}

	// Device and reconciler
	mcuOpts := []mcu.Option{mcu.WithLogger(log.With("component", "mcu"))}
	recOpts := []reconcile.Option{reconcile.WithLogger(log.With("component", "reconcile"))}
	for _, o := range observers {
		mcuOpts = append(mcuOpts, mcu.WithObserver(o))
		recOpts = append(recOpts, reconcile.WithObserver(o))
	}

	client, err := openClient(cfg.MCU, mcu.LimitsFromConfig(cfg.Thresholds), mcuOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing bus", "error", closeErr)
		}
	}()

	rec := reconcile.New(client, reconcile.ConfigFrom(cfg.Thresholds), recOpts...)

	if mqttClient != nil {
		handler := telemetry.NewCommandHandler(mqttClient, client, rec, log.With("component", "mqtt"))
		if err := handler.Start(ctx); err != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", err)
		}
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.With("component", "api"),
			Client:     client,
			Reconciler: rec,
			History:    repo,
			Metrics:    m.Handler(),
			Hub:        hub,
			Version:    version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete")
	if err := rec.Run(ctx); err != nil {
		return err
	}
	log.Info("mcuctrl stopped")
	return nil
}

// pruneHistory deletes records older than retention at startup and then daily.
func (a *app) pruneHistory(ctx context.Context, repo history.Repository, retention time.Duration) {
	ticker := time.NewTicker(day)
	defer ticker.Stop()
	for {
		n, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			a.log.Warn("pruning history failed", "error", err)
		case n > 0:
			a.log.Info("pruned history", "records", n, "older_than", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
