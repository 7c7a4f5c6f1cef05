package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"wamda.app/notifier/internal/backend"
	"wamda.app/notifier/internal/config"
	"wamda.app/notifier/internal/handler"
	"wamda.app/notifier/internal/middleware"
)

type Server struct {
	engine *gin.Engine
	cfg    *config.Config
}

func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log *zap.Logger) *Server {
	store := backend.NewStore(db, redisClient)
	realtime := backend.NewRealtime(redisClient, log)

	notificationHandler := handler.NewNotificationHandler(store, realtime, cfg, log)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)

	router := gin.New()
	setupCORS(router, cfg.AllowedOrigins)
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notifier"})
	})

	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())
	{
		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.GetNotifications)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/read-all", notificationHandler.MarkAllAsRead)
			notifications.GET("/stream", notificationHandler.Stream)
		}

		internal := api.Group("/internal")
		{
			internal.POST("/notifications", notificationHandler.CreateNotification)
		}
	}

	return &Server{engine: router, cfg: cfg}
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Router exposes the underlying gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

func setupCORS(router *gin.Engine, allowedOrigins string) {
	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	} else {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
