package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/dispatcher"
	"github.com/sua-org/nursecall-bus/internal/store"
)

func (s *Server) handleCameraByRoom(c *gin.Context) {
	room := strings.TrimSpace(strings.TrimPrefix(c.Param("room"), "/"))
	s.streamRoom(c, room)
}

// handleVideoFeed resolve o quarto pela câmera cadastrada.
func (s *Server) handleVideoFeed(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("camera_id"), 10, 64)
	if err != nil {
		ParamError(c, "camera_id must be a positive integer")
		return
	}

	cam, err := s.Queries.FindCamera(c.Request.Context(), uint(id))
	switch {
	case errors.Is(err, store.ErrNotFound):
		NotFound(c, "camera not found")
		return
	case err != nil:
		s.logger().Error("find camera failed", zap.Uint64("camera_id", id), zap.Error(err))
		ServerError(c)
		return
	case cam.Room == nil:
		NotFound(c, "camera not found")
		return
	}

	s.streamRoom(c, strings.TrimSpace(cam.Room.DisplayName()))
}

func (s *Server) streamRoom(c *gin.Context, room string) {
	if room == "" || !s.Cameras.Has(room) {
		NotFound(c, "no active camera stream for room: "+room)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", dispatcher.VideoContentType)
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	feed := dispatcher.VideoFeed{
		Frames:      s.Cameras,
		Placeholder: s.Placeholder,
		FPS:         s.VideoFPS,
	}
	if s.Metrics != nil {
		feed.OnFrame = s.Metrics.VideoPart
	}

	if err := feed.Stream(c.Request.Context(), c.Writer, room); err != nil {
		s.logger().Debug("video viewer gone", zap.String("room", room), zap.Error(err))
	}
}
