// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/codegod100/sqlworker/edge"
	"github.com/codegod100/sqlworker/internal/auth"
	"github.com/codegod100/sqlworker/internal/config"
	"github.com/codegod100/sqlworker/recordstore"
	"github.com/codegod100/sqlworker/recordstore/pebblestore"
	"github.com/codegod100/sqlworker/recordstore/pgstore"
	"github.com/codegod100/sqlworker/remote"
	"github.com/codegod100/sqlworker/wire"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "sqlworker",
		Short: "Local-first note sync node",
		Long:  "sqlworker runs the authoritative note store with push notifications, and the edge commands that mirror it locally.",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")

	rootCmd.AddCommand(
		serveCmd(&configPath, logger),
		sendCmd(&configPath, logger),
		listCmd(&configPath, logger),
		syncCmd(&configPath, logger),
		watchCmd(&configPath, logger),
		tokenCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openRecordStore(ctx context.Context, cfg config.ServerConfig) (recordstore.Store, error) {
	switch cfg.Store {
	case "", "pebble":
		return pebblestore.Open(cfg.PebbleDir)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pgstore.New(ctx, pool)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func serveCmd(configPath *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authoritative node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openRecordStore(ctx, cfg.Server)
			if err != nil {
				return err
			}
			defer store.Close()

			svc, err := remote.NewService(store, logger)
			if err != nil {
				return err
			}

			gen := remote.NewGenerator(svc, cfg.Server.Generate.Std(), logger)
			if err := gen.Start(ctx); err != nil {
				return err
			}
			defer gen.Stop()

			var authenticator *auth.JWTAuth
			if cfg.Server.JWTSecret != "" {
				authenticator = auth.NewJWTAuth(cfg.Server.JWTSecret)
			}

			mux := http.NewServeMux()
			mux.Handle("/rpc", remote.NewWSServer(svc, authenticator, logger))
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})

			server := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			logger.Info("serving", "addr", cfg.Server.ListenAddr, "store", cfg.Server.Store)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func openEdgeClient(cfg config.Config, logger *slog.Logger) (*edge.Client, error) {
	store, err := edge.OpenLocalStore(cfg.Edge.DBPath, logger)
	if err != nil {
		return nil, err
	}
	dialer := &edge.WSDialer{Token: cfg.Edge.Token}
	return edge.NewClient(store, dialer, edge.Config{
		Endpoint: cfg.Edge.Endpoint,
		Backoff:  cfg.Edge.Backoff.Std(),
		Logger:   logger,
	})
}

func sendCmd(configPath *string, logger *slog.Logger) *cobra.Command {
	var title, content string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Create an entry locally and push it to the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			client, err := openEdgeClient(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			client.Connect(ctx)
			entry, err := client.CreateEntry(ctx, title, content)
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", entry.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "entry title")
	cmd.Flags().StringVar(&content, "content", "", "entry content")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func listCmd(configPath *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locally mirrored entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store, err := edge.OpenLocalStore(cfg.Edge.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Printf("%s  %s  %s\n", entry.ID, entry.CreatedAt.Format(time.RFC3339), entry.Title)
			}
			return nil
		},
	}
}

func syncCmd(configPath *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local mirror with the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			client, err := openEdgeClient(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			client.Connect(ctx)
			if err := client.Sync(ctx); err != nil {
				return err
			}
			count, err := client.Store().Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("local entries: %d\n", count)
			return nil
		},
	}
}

func watchCmd(configPath *string, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay subscribed and print pushed entries as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store, err := edge.OpenLocalStore(cfg.Edge.DBPath, logger)
			if err != nil {
				return err
			}
			dialer := &edge.WSDialer{Token: cfg.Edge.Token}
			client, err := edge.NewClient(store, dialer, edge.Config{
				Endpoint: cfg.Edge.Endpoint,
				Backoff:  cfg.Edge.Backoff.Std(),
				Handler:  printHandler{},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client.Connect(ctx)
			<-ctx.Done()
			return nil
		},
	}
}

type printHandler struct{}

func (printHandler) HandleRemoteEntry(entry *wire.Entry) {
	fmt.Printf("new remote entry %s  %s\n", entry.ID, entry.Title)
}

func tokenCmd(configPath *string) *cobra.Command {
	var sourceID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an edge session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwtSecret is not configured")
			}
			token, err := auth.NewJWTAuth(cfg.Server.JWTSecret).GenerateToken(sourceID, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "edge-1", "source id embedded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
