package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"smartplug-telemetry-backend/config"
	"smartplug-telemetry-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, client VendorAPI) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(client)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// GET /api/device_list
		api.GET("/device_list", caching, handler.GetDeviceList)

		// GET /api/devices_data
		api.GET("/devices_data", caching, handler.GetDevicesData)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
