package api

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fanctl-backend/internal/ingest"
)

// UploadFanModel handles POST /api/fanmodels/upload: a register map file
// plus the model's endpoint and capacity as form fields.
func (h *Handler) UploadFanModel(c *gin.Context) {
	var result *ingest.RegisterResult
	err := h.withUpload(c, func(f *os.File) error {
		spec, err := modelSpecFromForm(c)
		if err != nil {
			return err
		}
		result, err = h.importer.ImportRegisters(c.Request.Context(), f, spec)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.FanModel != nil {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func modelSpecFromForm(c *gin.Context) (ingest.ModelSpec, error) {
	port, err := strconv.Atoi(strings.TrimSpace(c.PostForm("port")))
	if err != nil {
		return ingest.ModelSpec{}, fmt.Errorf("%w: port must be a number", ingest.ErrInvalidInput)
	}
	total, err := strconv.Atoi(strings.TrimSpace(c.PostForm("totalDevices")))
	if err != nil {
		return ingest.ModelSpec{}, fmt.Errorf("%w: totalDevices must be a number", ingest.ErrInvalidInput)
	}
	return ingest.ModelSpec{
		IPAddress:    strings.TrimSpace(c.PostForm("ipAddress")),
		Port:         port,
		TotalDevices: total,
	}, nil
}

// ListFanModels handles GET /api/fanmodels.
func (h *Handler) ListFanModels(c *gin.Context) {
	fanModels, err := h.store.ListFanModels(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fanModels)
}

// GetFanModel handles GET /api/fanmodels/:model_id.
func (h *Handler) GetFanModel(c *gin.Context) {
	fanModel, err := h.store.GetFanModel(c.Request.Context(), c.Param("model_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fanModel)
}
