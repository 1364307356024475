package auditlog

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ritetech/rcm-intake/internal/service/audit"
	apperrors "github.com/ritetech/rcm-intake/pkg/errors"
	"github.com/ritetech/rcm-intake/pkg/httputil"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.Recent)
}

func (h *Handler) Recent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		httputil.RespondWithError(c, apperrors.BadRequest("limit must be a positive integer", err))
		return
	}

	entries, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, entries)
}
