package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"fanctl-backend/internal/model"
	"fanctl-backend/internal/store"
)

type createFloorRequest struct {
	Name string  `json:"name" binding:"required"`
	File *string `json:"file"`
}

type updateFloorRequest struct {
	Name *string `json:"name"`
	File *string `json:"file"`
}

type layoutRequest struct {
	Meta json.RawMessage `json:"meta"`
}

// CreateFloor handles POST /api/floors.
func (h *Handler) CreateFloor(c *gin.Context) {
	var req createFloorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "floor name is required"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "floor name is required"})
		return
	}

	floor := &model.Floor{Name: name, File: req.File}
	if err := h.store.CreateFloor(c.Request.Context(), floor); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "floor name already exists"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"floor": floor, "layout": floor.Layout})
}

// ListFloors handles GET /api/floors.
func (h *Handler) ListFloors(c *gin.Context) {
	floors, err := h.store.ListFloors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, floors)
}

// GetFloor handles GET /api/floors/:floor_id.
func (h *Handler) GetFloor(c *gin.Context) {
	floor, err := h.store.GetFloor(c.Request.Context(), c.Param("floor_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, floor)
}

// UpdateFloor handles PUT /api/floors/:floor_id.
func (h *Handler) UpdateFloor(c *gin.Context) {
	var req updateFloorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "floor name must not be empty"})
			return
		}
		req.Name = &name
	}

	update, err := h.store.UpdateFloor(c.Request.Context(), c.Param("floor_id"), store.FloorPatch{Name: req.Name, File: req.File})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "floor name already exists"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"floor":         update.Floor,
		"layout":        update.Layout,
		"layoutCreated": update.LayoutCreated,
	})
}

// PutLayout handles PUT /api/floors/:floor_id/layout. It answers 201 when
// the layout had to be created and 200 when an existing one was updated.
func (h *Handler) PutLayout(c *gin.Context) {
	var req layoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Meta) == 0 || bytes.Equal(req.Meta, []byte("null")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "meta is required"})
		return
	}

	layout, created, err := h.store.UpsertLayoutMeta(c.Request.Context(), c.Param("floor_id"), datatypes.JSON(req.Meta))
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"layout": layout, "created": created})
}

// DeleteFloor handles DELETE /api/floors/:floor_id.
func (h *Handler) DeleteFloor(c *gin.Context) {
	deletion, err := h.store.DeleteFloor(c.Request.Context(), c.Param("floor_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"floor":         deletion.Floor,
		"deletedFans":   deletion.DeletedFans,
		"deletedLayout": deletion.DeletedLayout,
	})
}
