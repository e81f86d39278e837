package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/consultbridge/ConsultBridge-Backend/internal/dtos"
	"github.com/consultbridge/ConsultBridge-Backend/internal/services"
)

type RecordingHandler struct {
	reconciler *services.RecordingReconciler
	log        zerolog.Logger
}

func NewRecordingHandler(reconciler *services.RecordingReconciler, log zerolog.Logger) *RecordingHandler {
	return &RecordingHandler{reconciler: reconciler, log: log}
}

// SyncRecordings triggers an on-demand reconciliation pass and returns
// the operator-facing report. Reconciliation problems never leak to
// end users; this endpoint is for operators.
func (h *RecordingHandler) SyncRecordings(c *gin.Context) {
	report, err := h.reconciler.Sync(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("recording sync failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "recording sync failed, see server logs"})
		return
	}

	c.JSON(http.StatusOK, dtos.SyncRecordingsResponse{
		Checked:        report.Checked,
		Updated:        report.Updated,
		Orphaned:       report.Orphaned,
		StrategyCounts: report.StrategyCounts,
	})
}
