package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/chukwumela909/taskhub-server/auth"
	"github.com/chukwumela909/taskhub-server/config"
	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/handlers"
	"github.com/chukwumela909/taskhub-server/notifications"
	"github.com/chukwumela909/taskhub-server/services"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskhub",
		Short:         "Task marketplace server: tasks, bids, acceptance and the tasker feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), categoryCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tp, shutdownTracing, err := setupTracing(cfg.JaegerAddress)
	if err != nil {
		return err
	}
	tracer := tp.Tracer(serviceName)

	storeLogger := newLogger("task-store")
	serviceLogger := newLogger("task-service")
	notifyLogger := newLogger("notifications")
	httpLogger := newLogger("http")

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	b, err := openBackend(startCtx, cfg, storeLogger, tracer)
	if err != nil {
		return err
	}
	if err := b.prepare(startCtx); err != nil {
		return err
	}

	sink, inbox, closeSink, err := newSink(cfg, notifyLogger, tracer)
	if err != nil {
		return err
	}
	dispatcher := notifications.NewDispatcher(b.taskers, sink, notifyLogger, tracer)

	provider, err := auth.NewProvider(cfg.AuthSecret, cfg.AuthIssuer)
	if err != nil {
		return err
	}

	taskService := services.NewTaskService(b.store, b.categories, dispatcher, serviceLogger, tracer)
	bidService := services.NewBidService(b.store, serviceLogger, tracer)
	acceptanceService := services.NewAcceptanceService(b.store, serviceLogger, tracer)
	feedService := services.NewFeedService(b.store, b.taskers, serviceLogger, tracer, cfg.FeedMaxPageSize)

	h := handlers.Handlers{
		Auth:  handlers.NewAuthHandler(provider, httpLogger),
		Tasks: handlers.NewTaskHandler(taskService, bidService, tracer),
		Bids:  handlers.NewBidHandler(bidService, acceptanceService, tracer),
		Feed:  handlers.NewFeedHandler(feedService, tracer),
	}
	if inbox != nil {
		h.Notifications = handlers.NewNotificationHandler(inbox, tracer)
	}
	router := handlers.NewRouter(h)

	cors := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "PATCH"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "traceparent"}),
	)

	server := &http.Server{
		Addr:         cfg.Address,
		Handler:      gorillaHandlers.LoggingHandler(os.Stdout, cors(router)),
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		httpLogger.Println("Server listening on", cfg.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpLogger.Fatal(err)
		}
	}()

	// Steps run in order: stop taking requests, let background notifications
	// drain, then release the store and flush spans.
	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"taskhub": func(ctx context.Context) error {
			if err := server.Shutdown(ctx); err != nil {
				httpLogger.Println("Cannot gracefully shutdown:", err)
			}
			if err := taskService.Wait(ctx); err != nil {
				notifyLogger.Println("notifications still in flight:", err)
			}
			closeSink()
			if err := b.Close(ctx); err != nil {
				storeLogger.Println("failed to close store:", err)
			}
			return shutdownTracing(ctx)
		},
	})
	exitCode := <-wait
	httpLogger.Println("Server stopped")
	os.Exit(exitCode)
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables (sqlite) or indexes (mongo) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *backend) error {
				if err := b.prepare(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}

func categoryCmd() *cobra.Command {
	var inactive bool
	cmd := &cobra.Command{
		Use:   "category <id> <name>",
		Short: "Create or update a task category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *backend) error {
				if err := b.writer.Upsert(ctx, args[0], args[1], !inactive); err != nil {
					return err
				}
				if b.cache != nil {
					if err := b.cache.Invalidate(ctx, args[0]); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "category %s saved (active=%t)\n", args[0], !inactive)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&inactive, "inactive", false, "mark the category as inactive")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			provider, err := auth.NewProvider(cfg.AuthSecret, cfg.AuthIssuer)
			if err != nil {
				return err
			}
			r, err := domain.RoleFromString(role)
			if err != nil {
				return err
			}
			token, err := provider.Issue(domain.Principal{ID: userID, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleRequester), "requester or tasker")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func withBackend(ctx context.Context, fn func(ctx context.Context, b *backend) error) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	logger := newLogger("task-store")
	tp, _, err := setupTracing("")
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg, logger, tp.Tracer(serviceName))
	if err != nil {
		return err
	}
	defer func() { _ = b.Close(context.Background()) }()
	return fn(ctx, b)
}
