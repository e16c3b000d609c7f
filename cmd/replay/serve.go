package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kinereplay/backend/internal/api"
	"github.com/kinereplay/backend/internal/config"
	"github.com/kinereplay/backend/internal/session"
	"github.com/kinereplay/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// serve runs the HTTP API until interrupted.
func serve(cfg *config.AppConfig) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	maxUpload, err := cfg.MaxUploadBytes()
	if err != nil {
		return err
	}
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir(), maxUpload)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	loader, err := sceneLoader(cfg)
	if err != nil {
		return err
	}

	sessOpts := session.Options{
		MaxSessions:  cfg.Playback.MaxSessions,
		TickInterval: cfg.TickInterval(),
		StartPaused:  cfg.Playback.StartPaused,
		Limits:       loader.Limits,
		Palette:      loader.Palette,
	}
	if cfg.Storage.EnablePersistence {
		sessOpts.Archives = session.NewArchiveCache(cfg.GetArchiveDir(), archiveOptions(cfg))
	}
	sessionMgr := session.NewManager(sessOpts)
	defer sessionMgr.Shutdown()

	// Start background session cleanup
	cleanupInterval := time.Duration(cfg.Playback.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(time.Duration(cfg.Playback.SessionTimeoutMinutes) * time.Minute)
		}
	}()

	api.ShowErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/frame") ||
				strings.HasSuffix(path, "/frame/msgpack") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:      fileStore,
		SessionMgr: sessionMgr,
		Version:    Version,
	}))

	s := &http.Server{
		Addr:        cfg.GetServerAddr(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// WriteTimeout is left unset: websocket streams stay open indefinitely.
		IdleTimeout: time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Kinematic Replay Server                         ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Tick:      %-46s║\n", cfg.TickInterval())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- e.StartServer(s) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		fmt.Println("[Server] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
