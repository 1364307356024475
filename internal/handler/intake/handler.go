package intake

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ritetech/rcm-intake/internal/middleware"
	"github.com/ritetech/rcm-intake/internal/service/intake"
	"github.com/ritetech/rcm-intake/internal/store"
	apperrors "github.com/ritetech/rcm-intake/pkg/errors"
	"github.com/ritetech/rcm-intake/pkg/httputil"
)

type Handler struct {
	service *intake.Service
}

func NewHandler(service *intake.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/submissions", h.Submit)
}

type submitResponse struct {
	Record   interface{} `json:"record"`
	Override bool        `json:"override"`
	Warning  string      `json:"warning,omitempty"`
}

func (h *Handler) Submit(c *gin.Context) {
	var req intake.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	user := c.GetString(middleware.ContextUsername)
	result, err := h.service.Submit(c.Request.Context(), user, &req)
	if err != nil {
		httputil.RespondWithError(c, mapSubmitError(err))
		return
	}

	resp := submitResponse{Record: result.Record, Override: result.Override}
	if result.AuditErr != nil {
		// The row is committed; the client should know the trail is
		// incomplete but must not retry the submission.
		resp.Warning = "submission stored, audit trail entry failed"
	}
	httputil.RespondWithSuccess(c, resp)
}

func mapSubmitError(err error) error {
	var vErr *intake.ValidationError
	if errors.As(err, &vErr) {
		return apperrors.BadRequest(vErr.Error(), err)
	}
	if errors.Is(err, intake.ErrDuplicate) {
		return apperrors.Conflict("duplicate submission, resubmit with override to force", err)
	}
	var sErr *store.StoreError
	if errors.As(err, &sErr) {
		if sErr.Transient {
			return apperrors.Unavailable("backing store is busy, try again", err)
		}
		return apperrors.Internal(err)
	}
	return apperrors.Internal(err)
}
