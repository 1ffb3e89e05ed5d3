package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trivio-gg/trivio/internal/auth"
	"github.com/trivio-gg/trivio/internal/config"
	"github.com/trivio-gg/trivio/internal/database"
	"github.com/trivio-gg/trivio/internal/handlers"
	"github.com/trivio-gg/trivio/internal/history"
	"github.com/trivio-gg/trivio/internal/middleware"
	"github.com/trivio-gg/trivio/internal/quiz"
	"github.com/trivio-gg/trivio/internal/room"
	"github.com/trivio-gg/trivio/internal/scoring"
	"github.com/trivio-gg/trivio/internal/server"
	"github.com/trivio-gg/trivio/internal/ws"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	logger.Info("connected to database")

	// Redis is auxiliary; a missing instance degrades to a warning.
	var hist *history.Publisher
	if cfg.RedisAddr != "" {
		rdb, err := history.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.WithField("error", err).Warn("redis unavailable, history disabled")
		} else {
			hist = history.NewPublisher(rdb, logger)
			logger.Info("connected to redis")
		}
	}

	verifier := auth.NewJWTVerifier(cfg.SessionSecret)
	registry := ws.NewRegistry(logger)
	members := room.NewStore(db, logger)
	keeper := scoring.NewKeeper(db, hist, logger)
	engine := quiz.NewEngine(quiz.DefaultConfig(), logger, members, db, keeper, registry)

	registry.SetOnDetach(func(c *ws.Client, roomID string) {
		engine.Leave(context.Background(), c.UserID, roomID)
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(logger, verifier, registry, engine),
	)))
	mux.HandleFunc("/health", handlers.HealthHandler(registry))

	sup := server.New(logger, ":"+cfg.Port, mux, registry, engine, db)
	return sup.Run(ctx)
}
