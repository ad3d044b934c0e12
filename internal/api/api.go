package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/AniruddhAgrahari/smartstock/internal/api/handlers"
	"github.com/AniruddhAgrahari/smartstock/internal/api/middleware"
	"github.com/AniruddhAgrahari/smartstock/internal/service"
)

type Services struct {
	PlanningService *service.PlanningService
}

// Options tunes the router middleware. A zero RateLimitRPS disables rate
// limiting.
type Options struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(services *Services, opts Options) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(opts.AllowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))
	if opts.RateLimitRPS > 0 {
		router.Use(middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).Middleware())
	}

	apiGroup := router.Group("/api/v1")

	if services != nil && services.PlanningService != nil {
		h := handlers.NewPlanningHandler(services.PlanningService)

		apiGroup.POST("/forecasts", h.Forecast)
		apiGroup.DELETE("/forecasts/cache", h.InvalidateForecasts)

		planGroup := apiGroup.Group("/plans")
		{
			planGroup.POST("", h.Plan)
			planGroup.POST("/run", h.RunFromDB)
			planGroup.GET("/runs", h.ListRuns)
			planGroup.GET("/runs/:id", h.GetRun)
		}

		forecastGroup := apiGroup.Group("/forecast")
		{
			forecastGroup.GET("/models", h.Models)
			forecastGroup.POST("/evaluate", h.Evaluate)
		}

		apiGroup.POST("/transfers", h.Transfers)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
