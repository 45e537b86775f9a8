package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/camfeed/camfeed-server/internal/repo"
	"github.com/camfeed/camfeed-server/internal/service"
)

// FeedHandler serves the live MJPEG feed.
type FeedHandler struct {
	log   *zap.Logger
	feeds *service.FeedService
}

// NewFeedHandler constructs a FeedHandler instance.
func NewFeedHandler(log *zap.Logger, feeds *service.FeedService) *FeedHandler {
	return &FeedHandler{
		log:   log.Named("feed"),
		feeds: feeds,
	}
}

// VideoFeed handles GET /video_feed/{id}.
//
// Behavior:
//   - Starts a dedicated decode process for this viewer and streams frames
//     as multipart/x-mixed-replace until the viewer disconnects or the
//     source ends. The response has no fixed length.
//   - All failure status codes are decided before the first body byte;
//     once streaming starts the connection just ends.
//
// Status Codes:
//   - 200 OK → multipart MJPEG body
//   - 400 Bad Request → Invalid ID format
//   - 404 Not Found → Stream not found
//   - 500 Internal Server Error → Decoder failed to launch
func (h *FeedHandler) VideoFeed(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64) // already validated by middleware

	feed, err := h.feeds.OpenFeed(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		if errors.Is(err, repo.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": repo.ErrStreamNotFound.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.Header("Content-Type", service.FeedContentType)
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	if err := feed.Serve(c.Request.Context(), c.Writer); err != nil {
		// Headers are long gone; log and let the connection close.
		h.log.Error("feed pipeline failed",
			zap.Int64("stream_id", id),
			zap.Error(err),
		)
	}
}
