package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"ordertrack-backend/config"
	"ordertrack-backend/internal/mw"
	"ordertrack-backend/internal/notification"
	"ordertrack-backend/internal/order"
	"ordertrack-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, orders *order.Service, wp *notification.WorkerPool, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	db := s.DB()
	handler := NewHandler(cfg, s, orders, wp, webpushOptions)

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, cfg.Server.RequestIPHeader)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	authed := mw.Auth(cfg.Auth.JWTSecret)
	admin := mw.RequireAdmin()

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/auth/login", handler.Login)
		api.POST("/users", authed, admin, handler.CreateUser)

		api.GET("/countries", caching, GetCountries(db))
		api.POST("/countries", authed, admin, handler.CreateCountry)

		api.GET("/machines", caching, GetMachines(db))
		api.POST("/machines", authed, admin, handler.CreateMachine)
		api.GET("/machines/:machine_id/panels", caching, GetPanels(db))
		api.POST("/machines/:machine_id/panels", authed, admin, handler.CreatePanel)

		api.POST("/orders", authed, handler.CreateOrder)
		api.GET("/orders", authed, handler.GetOrders)
		api.GET("/orders/:order_id", authed, handler.GetOrder)
		api.GET("/orders/:order_id/serials", authed, handler.GetOrderSerials)
		api.PUT("/orders/:order_id", authed, handler.UpdateOrder)
		api.PATCH("/orders/:order_id/status", authed, handler.UpdateOrderStatus)
		api.DELETE("/orders/:order_id", authed, admin, handler.DeleteOrder)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
