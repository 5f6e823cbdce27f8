package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/chatbot-factory/backend/internal/config"
	"github.com/chatbot-factory/backend/internal/db"
	"github.com/chatbot-factory/backend/internal/http/handlers"
	"github.com/chatbot-factory/backend/internal/http/middleware"

	_ "github.com/chatbot-factory/backend/docs"
)

func Router(cfg config.Config, store *db.Store, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:          store,
		Validator:      validator.New(),
		Logger:         logger,
		AdminKey:       cfg.AdminKey,
		ListenAction:   cfg.ListenAction,
		FallbackIntent: cfg.FallbackIntent,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")

	public := api.Group("/public")
	{
		public.GET("/intents/:query", h.IntentsSearch)
		public.POST("/feedback", h.FeedbackCreate)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.GET("/inbox", h.InboxList)
		admin.POST("/inbox/:id/validate", h.InboxValidate)
		admin.POST("/inbox/:id/assign/:email", h.InboxAssign)
		admin.PUT("/inbox/:id", h.InboxEdit)
		admin.DELETE("/inbox/:id", h.InboxArchive)
		admin.GET("/intents", h.IntentsList)
		admin.POST("/intents", h.IntentCreate)
		admin.DELETE("/intents/:name", h.IntentArchive)
		admin.POST("/consolidate", h.Consolidate)
		admin.POST("/reconcile", h.Reconcile)
		admin.GET("/runs/latest", h.RunsLatest)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
