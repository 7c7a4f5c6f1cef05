package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wamda.app/notifier/internal/config"
	"wamda.app/notifier/internal/entity"
	"wamda.app/notifier/internal/server"
	"wamda.app/notifier/pkg/database"
	"wamda.app/notifier/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(cfg.AppEnv)
	zlog := logger.Get()
	defer zlog.Sync()

	db := database.Connect()
	if err := db.AutoMigrate(&entity.ActorProfile{}, &entity.Notification{}); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Realtime subscriptions will surface channel errors to clients;
		// historical data still works, so start anyway.
		zlog.Warn("redis unreachable at startup", zap.Error(err))
	}

	srv := server.NewServer(cfg, db, redisClient, zlog)
	zlog.Info("starting notifier", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if err := srv.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}
