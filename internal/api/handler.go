package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"fanctl-backend/config"
	"fanctl-backend/internal/fanctl"
	"fanctl-backend/internal/ingest"
	"fanctl-backend/internal/realtime"
	"fanctl-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	cfg        *config.Config
	store      store.Store
	importer   *ingest.Coordinator
	controller *fanctl.Controller
	hub        *realtime.Hub
	webpush    *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(cfg *config.Config, s store.Store, importer *ingest.Coordinator, controller *fanctl.Controller, hub *realtime.Hub, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		cfg:        cfg,
		store:      s,
		importer:   importer,
		controller: controller,
		hub:        hub,
		webpush:    webpushOptions,
	}
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var capErr *store.CapacityError
	switch {
	case errors.Is(err, errUploadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.As(err, &capErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": store.ErrCapacityExceeded.Error(), "details": capErr})
	case errors.Is(err, ingest.ErrMalformedInput),
		errors.Is(err, ingest.ErrInvalidInput),
		errors.Is(err, fanctl.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrDuplicateModel),
		errors.Is(err, ingest.ErrDuplicateFan),
		errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrReferenceNotFound),
		errors.Is(err, fanctl.ErrNotFound),
		errors.Is(err, fanctl.ErrFloorNotFound),
		errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
