package intent

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agentplane/pkg/errutil"
	"agentplane/services/workitem"
)

// HTTPHandler accepts free-form commands, classifies them and submits the
// resulting work item in one call.
type HTTPHandler struct {
	classifier Classifier
	svc        *workitem.Service
}

func NewHTTPHandler(classifier Classifier, svc *workitem.Service) *HTTPHandler {
	return &HTTPHandler{classifier: classifier, svc: svc}
}

func RegisterRoutes(r *gin.Engine, h *HTTPHandler) {
	r.POST("/v1/commands", h.Submit)
}

type commandInput struct {
	OwnerID      string     `json:"owner_id"`
	Text         string     `json:"text"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

func (h *HTTPHandler) Submit(c *gin.Context) {
	var in commandInput
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}
	if in.OwnerID == "" || in.Text == "" {
		_ = c.Error(errutil.ValidationFailed("owner_id and text are required"))
		return
	}

	classification, err := h.classifier.Classify(c.Request.Context(), in.OwnerID, in.Text)
	if err != nil {
		if errors.Is(err, ErrClassification) {
			_ = c.Error(errutil.UnprocessableEntity("could not interpret command", errutil.WithErr(err)))
			return
		}
		_ = c.Error(errutil.BadGateway("classifier unavailable", errutil.WithErr(err)))
		return
	}

	item, err := h.svc.Submit(c.Request.Context(), workitem.SubmitInput{
		OwnerID:              in.OwnerID,
		Kind:                 classification.Kind,
		Payload:              classification.Payload,
		Priority:             classification.Priority,
		ScheduledFor:         in.ScheduledFor,
		RequiresConfirmation: classification.RequiresConfirmation,
	})
	if err != nil {
		_ = c.Error(errutil.ValidationFailed("failed to submit classified command", errutil.WithErr(err)))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         item.ID,
		"status":     item.Status,
		"kind":       item.Kind,
		"confidence": classification.Confidence,
	})
}
