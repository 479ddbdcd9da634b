package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teampat/obs-playout-mac/internal/media"
	"github.com/teampat/obs-playout-mac/internal/platform/config"
	"github.com/teampat/obs-playout-mac/internal/platform/database"
	"github.com/teampat/obs-playout-mac/internal/platform/logger"
	"github.com/teampat/obs-playout-mac/internal/platform/metrics"
	"github.com/teampat/obs-playout-mac/internal/playout"
	"github.com/teampat/obs-playout-mac/internal/realtime"
	"github.com/teampat/obs-playout-mac/internal/settings"
	"github.com/teampat/obs-playout-mac/internal/switcher"
)

const shutdownTimeout = 10 * time.Second

// hubNotifier adapts the realtime hub to the playout notifier contract.
type hubNotifier struct {
	hub *realtime.Hub
}

func (n *hubNotifier) OnAirChanged(record playout.OnAirRecord) {
	n.hub.BroadcastOnAir(record)
}

func (n *hubNotifier) EngineStatusChanged(connected bool) {
	n.hub.BroadcastOBSStatus(connected)
}

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	dbPath := config.GetEnv("DB_PATH", "playout.db")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	connectOnStart := config.GetEnvBool("OBS_CONNECT_ON_START", false)

	log := logger.New(logLevel, logFormat)

	db, err := database.Open(dbPath)
	if err != nil {
		log.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := settings.NewStore(db)
	if err != nil {
		log.Error("load settings failed", "error", err)
		os.Exit(1)
	}
	if err := store.Seed(settings.Settings{
		MediaRoot:   config.GetEnv("MEDIA_ROOT", "/media"),
		OBSURL:      config.GetEnv("OBS_URL", "ws://127.0.0.1:4455"),
		OBSPassword: config.GetEnv("OBS_PASSWORD", ""),
		TargetScene: config.GetEnv("TARGET_SCENE", playout.FollowCurrentScene),
		VideoSource: config.GetEnv("VIDEO_SOURCE_NAME", "PlayoutVideo"),
		ImageSource: config.GetEnv("IMAGE_SOURCE_NAME", "PlayoutImage"),
	}); err != nil {
		log.Error("seed settings failed", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	obs := switcher.New(log, met)

	playoutConfig := func() playout.Config {
		s := store.Current()
		return playout.Config{
			MediaRoot:   s.MediaRoot,
			OBSURL:      s.OBSURL,
			OBSPassword: s.OBSPassword,
			TargetScene: s.TargetScene,
			VideoSource: s.VideoSource,
			ImageSource: s.ImageSource,
		}
	}

	durations, err := media.NewDurationCache(db, nil, log)
	if err != nil {
		log.Error("init duration cache failed", "error", err)
		os.Exit(1)
	}
	catalog := media.NewCatalog(func() string { return store.Current().MediaRoot }, log)

	reconciler := playout.NewReconciler(obs, playoutConfig, log)

	// The hub replays service state and the service notifies the hub, so
	// the notifier is bound after both exist.
	notifier := &hubNotifier{}
	svc := playout.NewService(obs, reconciler, playoutConfig, durations, notifier, log, met)
	hub := realtime.NewHub(func() realtime.Snapshot {
		snap := svc.Snapshot()
		return realtime.Snapshot{OBSConnected: snap.OBSConnected, OnAir: snap.OnAir}
	}, log, met)
	notifier.hub = hub

	obs.OnDisconnect(svc.EngineClosed)

	h := playout.NewHandler(svc, store, catalog, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetObservers(hub.ObserverCount()) }).ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Route("/api", h.Register)
	r.Get("/ws", hub.ServeHTTP)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	ticker := realtime.NewProgressTicker(realtime.DefaultProgressInterval,
		func(ctx context.Context) any { return svc.Progress(ctx) },
		hub.BroadcastProgress)
	ticker.Start(rootCtx)

	if connectOnStart {
		if err := svc.ConnectEngine(rootCtx); err != nil {
			log.Warn("initial obs connect failed", "error", err)
		}
	}

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"media_root", store.Current().MediaRoot,
		"obs_url", store.Current().OBSURL,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ticker.Stop()
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	obs.Disconnect()
	log.Info("server stopped")
}
