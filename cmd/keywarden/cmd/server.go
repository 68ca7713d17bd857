package cmd

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jtmarsh/keywarden/api"
	"github.com/jtmarsh/keywarden/config"
	"github.com/jtmarsh/keywarden/crypto"
	"github.com/jtmarsh/keywarden/internal/logger"
	"github.com/jtmarsh/keywarden/session"
	bboltstorage "github.com/jtmarsh/keywarden/storage/bbolt"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the vault server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log := logger.New("server")

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		repo, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, "keywarden.db"), nil)
		if err != nil {
			return fmt.Errorf("opening vault storage: %w", err)
		}
		defer repo.Close()

		// Session key material lives in Redis when configured, so wrapped
		// passwords survive server restarts only as long as their TTL;
		// otherwise it stays in process memory and dies with the process.
		var volatile session.Store
		if cfg.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("parsing redis url: %w", err)
			}
			client := redis.NewClient(opts)
			defer client.Close()
			pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				return fmt.Errorf("connecting to redis: %w", err)
			}
			volatile = session.NewRedisStore(client, cfg.UnlockTimeout)
			log.Info().Msg("session store: redis")
		} else {
			volatile = session.NewMemoryStore()
			log.Info().Msg("session store: in-process memory")
		}

		opts := []api.Option{
			api.WithLogger(log),
			api.WithUnlockTimeout(cfg.UnlockTimeout),
			api.WithBcryptCost(cfg.BcryptCost),
			api.WithMinPasswordLength(cfg.MinPasswordLength),
			api.WithJWTExpiry(cfg.JWTExpiry),
		}
		if cfg.TwoFactorKey != "" {
			box, err := crypto.NewSecretBox(cfg.TwoFactorKey)
			if err != nil {
				return fmt.Errorf("loading two-factor key: %w", err)
			}
			opts = append(opts, api.WithSecretBox(box))
		} else {
			log.Warn().Msg("two-factor auth disabled: KEYWARDEN_2FA_KEY not set")
		}

		a := api.New(repo, volatile, []byte(cfg.JWTSecret), opts...)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(requestLogger(log))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		log.Info().Str("addr", cfg.Addr).Str("data_dir", cfg.DataDir).Msg("server started")

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// requestLogger attaches a request-scoped logger and records one line per
// request. Bodies are never logged; they can carry passwords.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := logger.Logger{Logger: log.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger()}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))
			reqLog.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
