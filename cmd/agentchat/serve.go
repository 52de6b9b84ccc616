package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/remote-agent-terminal/agentchat/api"
	"github.com/remote-agent-terminal/agentchat/internal/db"
	"github.com/remote-agent-terminal/agentchat/internal/observability"
	"github.com/remote-agent-terminal/agentchat/internal/repository"
	"github.com/remote-agent-terminal/agentchat/internal/session"
	"github.com/remote-agent-terminal/agentchat/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the agent and serve the chat API and UI bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		logger := newLogger(cfg)
		observability.RegisterMetrics()
		gin.SetMode(gin.ReleaseMode)

		tcfg, err := cfg.Transport()
		if err != nil {
			return err
		}
		scfg := session.Config{
			Transport: tcfg,
			RecordDir: cfg.Storage.RecordDir,
			Logger:    &logger,
		}

		// Ensure data directories exist
		if cfg.Storage.RecordDir != "" {
			if err := os.MkdirAll(cfg.Storage.RecordDir, 0755); err != nil {
				return fmt.Errorf("failed to create recording directory: %w", err)
			}
		}

		var repo *repository.TranscriptRepository
		if cfg.Storage.DBPath != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
			database, err := db.Open(cfg.Storage.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()
			repo = repository.NewTranscriptRepository(database)
			scfg.Store = repo
		}

		sess, err := session.New(scfg)
		if err != nil {
			return err
		}
		defer sess.Close()

		bridge := ws.NewService(sess, &logger)
		defer bridge.Close()

		opts := api.Options{
			Session:   sess,
			Bridge:    bridge,
			RecordDir: cfg.Storage.RecordDir,
			Logger:    observability.Component(&logger, "http"),
		}
		if repo != nil {
			opts.Transcripts = repo
		}
		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: api.NewRouter(opts),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := sess.Start(ctx); err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", cfg.Server.Addr).Str("agent", sess.Endpoint()).Msg("starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address override")
}
