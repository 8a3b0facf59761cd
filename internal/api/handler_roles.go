package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"fanctl-backend/internal/model"
	"fanctl-backend/internal/store"
)

type roleRequest struct {
	Name        *string         `json:"name"`
	Permissions map[string]bool `json:"permissions"`
}

// ListRoles handles GET /api/roles.
func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.store.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

// GetRole handles GET /api/roles/:role_id.
func (h *Handler) GetRole(c *gin.Context) {
	role, err := h.store.GetRole(c.Request.Context(), c.Param("role_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// CreateRole handles POST /api/roles.
func (h *Handler) CreateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role name is required"})
		return
	}
	permissions := req.Permissions
	if permissions == nil {
		permissions = map[string]bool{}
	}

	role := &model.Role{
		Name:        strings.TrimSpace(*req.Name),
		Permissions: datatypes.NewJSONType(permissions),
	}
	if err := h.store.CreateRole(c.Request.Context(), role); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "role name already exists"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// UpdateRole handles PUT /api/roles/:role_id.
func (h *Handler) UpdateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	patch := store.RolePatch{Permissions: req.Permissions}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role name must not be empty"})
			return
		}
		patch.Name = &name
	}

	role, err := h.store.UpdateRole(c.Request.Context(), c.Param("role_id"), patch)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "role name already exists"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// DeleteRole handles DELETE /api/roles/:role_id.
func (h *Handler) DeleteRole(c *gin.Context) {
	role, err := h.store.DeleteRole(c.Request.Context(), c.Param("role_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}
