package reference

import (
	"github.com/gin-gonic/gin"

	"github.com/ritetech/rcm-intake/internal/middleware"
	"github.com/ritetech/rcm-intake/internal/model"
	"github.com/ritetech/rcm-intake/internal/service/reference"
	apperrors "github.com/ritetech/rcm-intake/pkg/errors"
	"github.com/ritetech/rcm-intake/pkg/httputil"
)

type Handler struct {
	service *reference.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *reference.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	ref := r.Group("/reference")
	{
		ref.GET("/:kind", h.Options)
		ref.PUT("", h.auth.RequireAdmin(), h.Upsert)
	}
}

func (h *Handler) Options(c *gin.Context) {
	kind := c.Param("kind")
	opts := h.service.Options(c.Request.Context(), kind)
	httputil.RespondWithSuccess(c, gin.H{"kind": kind, "options": opts})
}

func (h *Handler) Upsert(c *gin.Context) {
	var opt model.ReferenceOption
	if err := c.ShouldBindJSON(&opt); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	user := c.GetString(middleware.ContextUsername)
	if err := h.service.Upsert(c.Request.Context(), user, opt); err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, opt)
}
