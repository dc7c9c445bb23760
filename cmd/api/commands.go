package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"proposalsapp/api/internal/app"
	"proposalsapp/api/internal/cache"
	"proposalsapp/api/internal/config"
	"proposalsapp/api/internal/diffrender"
	"proposalsapp/api/internal/logger"
	"proposalsapp/api/internal/metrics"
	"proposalsapp/api/internal/store"
	"proposalsapp/api/internal/worddiff"
)

func loadConfig(c *cli.Context) (config.Config, zerolog.Logger, error) {
	loaded := config.LoadDotEnv()
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: os.Stderr})
	if len(loaded) > 0 {
		log.Debug().Strs("files", loaded).Msg("loaded env files")
	}
	return cfg, log, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(c *cli.Context) error {
			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{})
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			m := metrics.New(prometheus.NewRegistry())
			opts := []app.Option{app.WithLogger(log), app.WithMetrics(m)}
			if strings.TrimSpace(cfg.RedisURL) != "" {
				groupCache, err := cache.NewGroupCache(cfg.RedisURL, cfg.GroupCacheTTL)
				if err != nil {
					return fmt.Errorf("redis connection failed: %w", err)
				}
				defer groupCache.Close()
				log.Info().Dur("ttl", cfg.GroupCacheTTL).Msg("caching group records in redis")
				opts = append(opts, app.WithCache(groupCache))
			}

			service := app.New(cfg, store.NewPostgresStore(db), opts...)
			server := &http.Server{
				Addr:              cfg.Addr,
				Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      cfg.Export.Timeout + 30*time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Msg("proposals API listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown error")
			}
			return nil
		},
	}
}

func diffCommand() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Render the changes between two markdown files",
		ArgsUsage: "<old> <new>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "spans",
				Usage: "Print paired word spans as JSON instead of HTML",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("diff needs exactly two files", 2)
			}
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			oldSrc, err := os.ReadFile(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("read old file: %w", err)
			}
			newSrc, err := os.ReadFile(c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("read new file: %w", err)
			}

			if c.Bool("spans") {
				result := worddiff.Compute(string(oldSrc), string(newSrc))
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"spans":     worddiff.Pair(result.Spans),
					"truncated": result.Truncated,
				})
			}

			classes := diffrender.Classes{
				Inserted: cfg.Diff.ClassInserted,
				Deleted:  cfg.Diff.ClassDeleted,
				Modified: cfg.Diff.ClassModified,
			}
			out, err := diffrender.RenderDiff(string(oldSrc), string(newSrc), classes,
				diffrender.WithMaxDepth(cfg.Diff.MaxDepth),
				diffrender.WithMaxNodes(cfg.Diff.MaxNodes),
			)
			if err != nil {
				return fmt.Errorf("render diff: %w", err)
			}
			_, err = fmt.Fprint(c.App.Writer, out)
			return err
		},
	}
}

func versionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "versions",
		Usage:     "Print the version history of a proposal group as JSON",
		ArgsUsage: "<groupId>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("versions needs a group id", 2)
			}
			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := store.Open(c.Context, cfg.DatabaseURL, store.PoolOptions{MaxOpenConns: cfg.Builder.Concurrency})
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			service := app.New(cfg, store.NewPostgresStore(db), app.WithLogger(log))
			payload, err := service.Versions(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
}
