package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facekit/facekit-agent/internal/api"
	"github.com/facekit/facekit-agent/internal/config"
	"github.com/facekit/facekit-agent/internal/db"
	"github.com/facekit/facekit-agent/internal/doctor"
	"github.com/facekit/facekit-agent/internal/edits"
	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/inference"
	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/media"
	"github.com/facekit/facekit-agent/internal/session"
	"github.com/facekit/facekit-agent/internal/store"
	"github.com/facekit/facekit-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.EditsDir(), cfg.VideosDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting facekit agent",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", cfg.DataDir(),
		"output_dir", cfg.OutputDir(),
		"model_dir", cfg.ModelDir(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  FACEKIT AGENT v%-42s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-28d║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	extractor := frames.NewFFmpegExtractor(frames.FFmpegConfig{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Format:      cfg.FrameFormat(),
		FPS:         cfg.ExtractFPS(),
		Timeout:     cfg.ExtractTimeout(),
		Logger:      logger,
	})

	sess := session.NewManager(session.Config{
		FramesDir:  cfg.FramesDir(),
		Extractor:  extractor,
		Repository: repo,
		Logger:     logger,
	})
	if err := sess.Restore(context.Background()); err != nil {
		logger.Warn("failed to restore previous session", "error", err)
	}

	var engine inference.Engine
	if cfg.InferenceURL() != "" {
		engine = inference.NewHTTPEngine(cfg.InferenceURL(), cfg.InferenceTimeout(), logger)
		logger.Info("using inference engine", "url", cfg.InferenceURL())
	} else {
		engine = inference.NewStubEngine(logger)
		logger.Warn("no inference URL configured, edits will copy their input")
	}

	doc := doctor.NewCachedDoctor(&doctor.SystemProber{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		Engine:      engine,
		Logger:      logger,
	}, logger)
	go func() {
		if _, err := doc.Refresh(context.Background()); err != nil {
			logger.Warn("initial doctor probe failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	editSvc := edits.NewService(edits.Config{
		Repository: repo,
		Session:    sess,
		Engine:     engine,
		EditsDir:   cfg.EditsDir(),
		VideosDir:  cfg.VideosDir(),
		Logger:     logger,
	})
	runner := edits.NewRunner(repo, sess, engine, logger)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:              cfg.Port(),
		OutputDir:         cfg.OutputDir(),
		EditsDir:          cfg.EditsDir(),
		VideosDir:         cfg.VideosDir(),
		CORSOrigins:       cfg.CORSOrigins(),
		KeyframeThreshold: cfg.KeyframeThreshold(),
		Session:           sess,
		Edits:             editSvc,
		Runner:            runner,
		Media:             media.NewServer(logger),
		Repository:        repo,
		Doctor:            doc,
		OpenFolder:        ui.OpenFolder,
		Logger:            logger,
		StartTime:         startTime,
		Version:           config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Session: sess,
			Runner:  runner,
			Logger:  logger,
			OnOpenOutputs: func() error {
				return ui.OpenFolder(cfg.OutputDir())
			},
			OnClear: func() {
				sess.Clear(context.Background())
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo store.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthConfigKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthConfigKey, token); err != nil {
		return "", err
	}

	return token, nil
}
