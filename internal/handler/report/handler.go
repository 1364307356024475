package report

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ritetech/rcm-intake/internal/middleware"
	"github.com/ritetech/rcm-intake/internal/service/report"
	apperrors "github.com/ritetech/rcm-intake/pkg/errors"
	"github.com/ritetech/rcm-intake/pkg/httputil"
)

type Handler struct {
	service *report.Service
}

func NewHandler(service *report.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reports := r.Group("/reports")
	{
		reports.GET("/export", h.Export)
		reports.POST("/send", h.Send)
	}
}

// Export streams the CSV straight back to the caller, the download
// path that stays available when delivery collaborators are down.
func (h *Handler) Export(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "1"))
	if err != nil || days < 1 {
		httputil.RespondWithError(c, apperrors.BadRequest("days must be a positive integer", err))
		return
	}

	rep, err := h.service.BuildReport(c.Request.Context(), days)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+rep.Filename+`"`)
	c.Data(http.StatusOK, "text/csv", rep.CSV)
}

type sendRequest struct {
	PeriodDays int    `json:"period_days" binding:"required,min=1"`
	Channel    string `json:"channel"`
	// SkipEmpty suppresses delivery when the filtered set is empty.
	SkipEmpty bool `json:"skip_empty"`
}

func (h *Handler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	rep, err := h.service.BuildReport(c.Request.Context(), req.PeriodDays)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}

	if req.SkipEmpty && rep.RowCount == 0 {
		httputil.RespondWithSuccess(c, gin.H{"sent": false, "row_count": 0})
		return
	}

	user := c.GetString(middleware.ContextUsername)
	if req.Channel == "email" {
		if err := h.service.SendEmail(c.Request.Context(), user, rep); err != nil {
			httputil.RespondWithError(c, deliveryError(err))
			return
		}
		httputil.RespondWithSuccess(c, gin.H{"sent": true, "row_count": rep.RowCount, "channel": "email"})
		return
	}

	res, err := h.service.Send(c.Request.Context(), user, rep)
	if err != nil {
		httputil.RespondWithError(c, deliveryError(err))
		return
	}
	httputil.RespondWithSuccess(c, gin.H{
		"sent":      true,
		"row_count": rep.RowCount,
		"channel":   "whatsapp",
		"steps":     res,
	})
}

func deliveryError(err error) error {
	var dErr *report.DeliveryError
	if errors.As(err, &dErr) {
		return apperrors.Unavailable(dErr.Error(), err)
	}
	return apperrors.Internal(err)
}
