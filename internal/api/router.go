package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"fanctl-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. Fan speed writes made
// over the websocket do not pass through these routes, so the caller flushes
// respCache from the controller as well.
func NewRouter(h *Handler, respCache *mw.ResponseCache) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(h.cfg.Server.RateLimitPerSec), h.cfg.Server.RateLimitBurst)
	caching := respCache.Cache()
	admin := mw.RequireRole(h.cfg.Auth.AdminRole)

	r.GET("/ws", h.ServeWS)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Authenticate(h.cfg.Auth.JWTSecret), respCache.Invalidate())
	{
		api.GET("/floors", caching, h.ListFloors)
		api.GET("/floors/:floor_id", caching, h.GetFloor)
		api.POST("/floors", admin, h.CreateFloor)
		api.PUT("/floors/:floor_id", admin, h.UpdateFloor)
		api.PUT("/floors/:floor_id/layout", admin, h.PutLayout)
		api.DELETE("/floors/:floor_id", admin, h.DeleteFloor)

		api.GET("/fanmodels", caching, h.ListFanModels)
		api.GET("/fanmodels/:model_id", caching, h.GetFanModel)
		api.POST("/fanmodels/upload", admin, h.UploadFanModel)

		api.GET("/fans", caching, h.ListFans)
		api.GET("/fans/model/:model_id", caching, h.ListFansByModel)
		api.POST("/fans", admin, h.CreateFan)
		api.POST("/fans/upload", admin, h.UploadFans)
		api.GET("/floors/:floor_id/fans", caching, h.ListFloorFans)
		api.GET("/floors/:floor_id/fans/:fan_id", caching, h.GetFan)
		api.PUT("/floors/:floor_id/fans/speed", admin, h.SetFanSpeeds)
		api.PUT("/floors/:floor_id/fans/:fan_id/speed", admin, h.SetFanSpeed)
		api.PUT("/floors/:floor_id/fans/:fan_id/status", admin, h.SetFanStatus)

		api.GET("/roles", caching, h.ListRoles)
		api.GET("/roles/:role_id", caching, h.GetRole)
		api.POST("/roles", admin, h.CreateRole)
		api.PUT("/roles/:role_id", admin, h.UpdateRole)
		api.DELETE("/roles/:role_id", admin, h.DeleteRole)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
