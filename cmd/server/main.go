package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/market-call-backend/internal/archive"
	"github.com/DoyleJ11/market-call-backend/internal/catalog"
	"github.com/DoyleJ11/market-call-backend/internal/config"
	"github.com/DoyleJ11/market-call-backend/internal/engine"
	"github.com/DoyleJ11/market-call-backend/internal/httpapi"
	"github.com/DoyleJ11/market-call-backend/internal/hub"
	"github.com/DoyleJ11/market-call-backend/internal/lobby"
	"github.com/DoyleJ11/market-call-backend/internal/logging"
	"github.com/DoyleJ11/market-call-backend/internal/ws"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cat, err := loadCatalog(cfg.RoundsFile)
	if err != nil {
		log.Error("load rounds", zap.String("file", cfg.RoundsFile), zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var recorder archive.Recorder = archive.Discard
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL, log.Named("archive"))
		if err != nil {
			log.Error("open archive", zap.Error(err))
			return err
		}
		defer store.Close()
		recorder = store
		g.Go(func() error { return store.Run(ctx) })
	}

	rules := engine.Rules{TipCost: cfg.TipCost, VotingWindow: cfg.VotingWindow}
	clock := clockwork.NewRealClock()
	h := hub.NewHub(ctx, func(ctx context.Context, code string) *lobby.Lobby {
		return lobby.NewLobby(ctx, code, engine.NewSession(cat, rules, clock), lobby.Options{
			HostKey:  cfg.HostKey,
			Recorder: recorder,
			Logger:   log,
		})
	}, log)
	if h.Ensure(ctx, cfg.DefaultGame) == nil {
		return errors.New("could not start default game")
	}

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, httpapi.Options{
		CORSOrigins: cfg.CORSOrigins,
		DefaultGame: cfg.DefaultGame,
		HostKey:     cfg.HostKey,
		Logger:      log,
		WS: ws.Options{
			DefaultGame: cfg.DefaultGame,
			Origins:     cfg.CORSOrigins,
			MsgRate:     cfg.WSMsgRate,
			MsgBurst:    cfg.WSMsgBurst,
			Logger:      log,
		},
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.Int("rounds", cat.Len()),
			zap.Bool("archive", cfg.DatabaseURL != ""),
			zap.String("default_game", cfg.DefaultGame))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
