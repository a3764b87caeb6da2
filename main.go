package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicebartender/roombot/bot"
	"github.com/nicebartender/roombot/db"
	"github.com/nicebartender/roombot/emotes"
	"github.com/nicebartender/roombot/loops"
	"github.com/nicebartender/roombot/platform"
	"github.com/nicebartender/roombot/registry"
	"github.com/nicebartender/roombot/roomconf"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	room, err := roomconf.Load(cfg.RoomConfig)
	if err != nil {
		slog.Error("failed to load room config", "err", err)
		os.Exit(1)
	}

	catalog := emotes.Default()
	if cfg.Emotes != "" {
		if catalog, err = emotes.Load(cfg.Emotes); err != nil {
			slog.Error("failed to load emote catalog", "err", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloads := make(chan *emotes.Catalog)
	if cfg.Emotes != "" {
		if err := emotes.Watch(ctx, cfg.Emotes, reloads); err != nil {
			slog.Warn("emote hot reload disabled", "err", err)
		}
	}

	client := platform.NewClient(platform.Config{URL: cfg.RoomURL, RoomID: cfg.RoomID, Token: cfg.Token})
	entities := registry.New(client)

	recorder := bot.NewRecorder(bot.NewMetrics(prometheus.DefaultRegisterer), database)
	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan struct{})
	go func() {
		recorder.Run(auditCtx)
		close(auditDone)
	}()

	manager := loops.NewManager(client, entities, loops.Config{
		Grace:       cfg.Grace,
		CallTimeout: cfg.CallTimeout,
		Observer:    recorder,
	})

	b := bot.New(bot.Deps{
		Platform: client,
		Entities: entities,
		Loops:    manager,
		Room:     room,
		Catalog:  catalog,
		Recorder: recorder,
	})

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"connected": client.IsConnected(),
			"loops":     manager.Len(),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/loops", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manager.List())
	})

	// Audit trail, newest last. ?entity= narrows to one user.
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := database.RecentEvents(r.URL.Query().Get("entity"), limit)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		slog.Info("http listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			stop()
		}
	}()

	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("platform client stopped", "err", err)
		}
	}()

	slog.Info("roombot starting", "room", cfg.RoomID, "emotes", catalog.Len())
	if err := b.Run(ctx, client.Events(), reloads); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bot stopped", "err", err)
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := manager.Close(shutdownCtx); err != nil {
		slog.Warn("loops did not stop in time", "err", err)
	}
	stopAudit()
	<-auditDone
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
}
