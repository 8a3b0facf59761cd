package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"fanctl-backend/internal/fanctl"
	"fanctl-backend/internal/ingest"
	"fanctl-backend/internal/model"
	"fanctl-backend/internal/parse"
	"fanctl-backend/internal/store"
)

type createFanRequest struct {
	FloorID    string `json:"floorId"`
	FanModelID string `json:"fanModelId"`
	DeviceID   *int64 `json:"deviceId"`
	Name       string `json:"name"`
	RPM        *int   `json:"rpm"`
}

type speedRequest struct {
	RPM *int `json:"rpm"`
}

type bulkSpeedRequest struct {
	Fans []fanctl.Change `json:"fans"`
}

type statusRequest struct {
	Status model.FanStatus `json:"status"`
}

// UploadFans handles POST /api/fans/upload.
func (h *Handler) UploadFans(c *gin.Context) {
	var result *ingest.FanResult
	err := h.withUpload(c, func(f *os.File) error {
		floorID := strings.TrimSpace(c.PostForm("floorId"))
		if floorID == "" {
			return fmt.Errorf("%w: floorId is required", ingest.ErrInvalidInput)
		}
		var err error
		result, err = h.importer.ImportFans(c.Request.Context(), f, floorID)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.InsertedCount > 0 {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// CreateFan handles POST /api/fans.
func (h *Handler) CreateFan(c *gin.Context) {
	var req createFanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DeviceID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceId is required"})
		return
	}

	draft := parse.FanDraft{
		DeviceID:   *req.DeviceID,
		Name:       strings.TrimSpace(req.Name),
		FanModelID: strings.TrimSpace(req.FanModelID),
	}
	if req.RPM != nil {
		draft.RPM = *req.RPM
	}

	fan, err := h.importer.CreateFan(c.Request.Context(), strings.TrimSpace(req.FloorID), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fan)
}

// ListFans handles GET /api/fans.
func (h *Handler) ListFans(c *gin.Context) {
	h.listFans(c, store.FanFilter{})
}

// ListFansByModel handles GET /api/fans/model/:model_id.
func (h *Handler) ListFansByModel(c *gin.Context) {
	modelID := c.Param("model_id")
	if _, err := h.store.GetFanModel(c.Request.Context(), modelID); err != nil {
		respondError(c, err)
		return
	}
	h.listFans(c, store.FanFilter{FanModelID: modelID})
}

// ListFloorFans handles GET /api/floors/:floor_id/fans.
func (h *Handler) ListFloorFans(c *gin.Context) {
	floorID := c.Param("floor_id")
	exists, err := h.store.FloorExists(c.Request.Context(), floorID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "floor not found"})
		return
	}
	h.listFans(c, store.FanFilter{FloorID: floorID})
}

func (h *Handler) listFans(c *gin.Context, filter store.FanFilter) {
	fans, err := h.store.ListFans(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fans)
}

// GetFan handles GET /api/floors/:floor_id/fans/:fan_id.
func (h *Handler) GetFan(c *gin.Context) {
	fan, err := h.store.GetFan(c.Request.Context(), c.Param("floor_id"), c.Param("fan_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fan)
}

// SetFanSpeed handles PUT /api/floors/:floor_id/fans/:fan_id/speed.
func (h *Handler) SetFanSpeed(c *gin.Context) {
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fan, err := h.controller.SetSpeed(c.Request.Context(), c.Param("floor_id"), c.Param("fan_id"), req.RPM)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fan)
}

// SetFanSpeeds handles PUT /api/floors/:floor_id/fans/speed. Items fail
// independently; the summary lists every outcome in request order.
func (h *Handler) SetFanSpeeds(c *gin.Context) {
	var req bulkSpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Fans) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fans must be a non-empty list"})
		return
	}

	summary, err := h.controller.SetMultiple(c.Request.Context(), c.Param("floor_id"), req.Fans)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// SetFanStatus handles PUT /api/floors/:floor_id/fans/:fan_id/status.
func (h *Handler) SetFanStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fan, err := h.controller.SetStatus(c.Request.Context(), c.Param("floor_id"), c.Param("fan_id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fan)
}
