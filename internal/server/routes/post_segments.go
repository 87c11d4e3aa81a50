package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/diarygraph/internal/queue"
	"github.com/OFFIS-RIT/diarygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/diarygraph/internal/storage"
	"github.com/OFFIS-RIT/diarygraph/pkg/common"
	"github.com/OFFIS-RIT/diarygraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SubmitSegmentHandler stores an extracted segment and queues it for merging
// into the user's global record set.
func SubmitSegmentHandler(c echo.Context) error {
	type submitSegmentBody struct {
		Segment       *common.Segment `json:"segment" validate:"required"`
		CorrelationID string          `json:"correlation_id" validate:"omitempty,max=128"`
	}

	type submitSegmentResponse struct {
		Message       string `json:"message"`
		SegmentID     string `json:"segment_id,omitempty"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, submitSegmentResponse{
			Message: "Unauthorized",
		})
	}

	data := new(submitSegmentBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitSegmentResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitSegmentResponse{
			Message: "Invalid request body",
		})
	}

	segment := data.Segment
	if err := segment.AssignMissingIDs(); err != nil {
		return c.JSON(http.StatusInternalServerError, submitSegmentResponse{
			Message: "Internal server error",
		})
	}
	segment.ScopeIDs()
	if err := segment.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, submitSegmentResponse{
			Message: err.Error(),
		})
	}

	correlationID := data.CorrelationID
	if correlationID == "" {
		id, err := common.NewID()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, submitSegmentResponse{
				Message: "Internal server error",
			})
		}
		correlationID = id
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	key, err := storage.PutSegment(ctx, app.S3, user.UserID, segment)
	if err != nil {
		logger.Error("[Server][Segments] Failed to store segment", "segment_id", segment.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, submitSegmentResponse{
			Message: "Internal server error",
		})
	}

	msg, err := json.Marshal(queue.QueueSegmentMsg{
		Message:       "Segment submitted",
		UserID:        user.UserID,
		CorrelationID: correlationID,
		SegmentKey:    key,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, submitSegmentResponse{
			Message: "Internal server error",
		})
	}

	if err := queue.PublishFIFO(app.Queue, queue.SegmentQueue, msg); err != nil {
		logger.Error("[Server][Segments] Failed to queue segment", "segment_id", segment.ID, "err", err)
		if delErr := storage.DeleteFile(ctx, app.S3, key); delErr != nil {
			logger.Warn("[Server][Segments] Failed to delete orphaned segment", "key", key, "err", delErr)
		}
		return c.JSON(http.StatusInternalServerError, submitSegmentResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, submitSegmentResponse{
		Message:       "Segment queued for merging",
		SegmentID:     segment.ID,
		CorrelationID: correlationID,
	})
}
