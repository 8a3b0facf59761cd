package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/internal/auth"
	"fanctl-backend/internal/realtime"
)

// ServeWS handles GET /ws. Browsers cannot set headers on a websocket
// handshake, so the bearer token travels in the token query parameter.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access denied: no token provided"})
		return
	}
	claims, err := auth.ParseToken(token, h.cfg.Auth.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	identity := realtime.Identity{
		Subject:  claims.Subject,
		CanWrite: claims.Role == h.cfg.Auth.AdminRole,
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, identity); err != nil {
		log.WithError(err).WithField("subject", claims.Subject).Warn("Websocket upgrade failed")
	}
}
