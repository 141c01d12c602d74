// internal/httpapi/api.go
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/camera"
	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/decoder"
	"github.com/sua-org/nursecall-bus/internal/dispatcher"
	"github.com/sua-org/nursecall-bus/internal/export"
	"github.com/sua-org/nursecall-bus/internal/store"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
	exportDateLayout   = "2006-01-02"
	defaultExportDays  = 7
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	data := gin.H{
		"database":    "ok",
		"cache":       "ok",
		"streams":     len(s.Cameras.Rooms()),
		"subscribers": s.Hub.Len(),
		"time":        s.now().In(s.location()).Format(time.RFC3339),
	}
	healthy := true
	if err := s.Queries.HealthCheck(ctx); err != nil {
		data["database"] = err.Error()
		healthy = false
	}
	if s.Stats != nil {
		// cache fora não derruba a saúde, só aparece no relatório
		if err := s.Stats.Ping(ctx); err != nil {
			data["cache"] = err.Error()
		}
	}

	if !healthy {
		Fail(c, CodeUnavailable, data)
		return
	}
	Success(c, data)
}

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	load := func(ctx context.Context) (store.Stats, error) {
		return s.Queries.Stats(ctx, s.now())
	}

	var (
		st  store.Stats
		err error
	)
	if s.Stats != nil {
		st, err = s.Stats.Get(ctx, load)
	} else {
		st, err = load(ctx)
	}
	if err != nil {
		s.logger().Error("stats query failed", zap.Error(err))
		ServerError(c)
		return
	}
	Success(c, st)
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			ParamError(c, fmt.Sprintf("limit must be between 1 and %d", maxRecentLimit))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	events, err := s.Queries.RecentEvents(ctx, limit)
	if err != nil {
		s.logger().Error("recent events query failed", zap.Error(err))
		ServerError(c)
		return
	}
	configured, err := s.Queries.ActiveCameraRooms(ctx)
	if err != nil {
		s.logger().Error("active camera rooms query failed", zap.Error(err))
		ServerError(c)
		return
	}

	out := make([]core.EventPayload, 0, len(events))
	for i := range events {
		out = append(out, s.eventPayload(&events[i], configured))
	}
	Success(c, out)
}

// eventPayload reconstrói o payload do feed para um evento gravado. O frame
// bruto é decodificado de novo para que título e subtítulo batam com o que
// saiu ao vivo; sem ele, usa o cadastro do leito.
func (s *Server) eventPayload(ev *store.Event, configured map[uint]bool) core.EventPayload {
	alert, err := decoder.DecodeHex(ev.RawHex)
	if err != nil {
		alert = decoder.Alert{
			Room:       ev.RoomIdentifier,
			DeviceType: ev.DeviceType,
			EventType:  ev.EventType,
		}
		if bed := ev.Bed; bed != nil {
			alert.Bed = bed.BedName
			if alert.Bed == "" {
				alert.Bed = bed.BedNumber
			}
		}
	}
	roomID := ev.RoomID
	if bed := ev.Bed; bed != nil && roomID == nil {
		roomID = bed.RoomID
	}
	hasCamera := roomID != nil && configured[*roomID]

	p := dispatcher.BuildPayload(ev, alert, s.Cameras, hasCamera)
	if p.RoomID == nil {
		p.RoomID = roomID
	}
	return p
}

// handleExportEvents devolve uma planilha com os eventos de from até to,
// ambos inclusivos, em dias no fuso configurado.
func (s *Server) handleExportEvents(c *gin.Context) {
	loc := s.location()
	today := s.now().In(loc)
	to := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	from := to.AddDate(0, 0, -(defaultExportDays - 1))

	var err error
	if raw := c.Query("to"); raw != "" {
		if to, err = time.ParseInLocation(exportDateLayout, raw, loc); err != nil {
			ParamError(c, "to must be YYYY-MM-DD")
			return
		}
	}
	if raw := c.Query("from"); raw != "" {
		if from, err = time.ParseInLocation(exportDateLayout, raw, loc); err != nil {
			ParamError(c, "from must be YYYY-MM-DD")
			return
		}
	}
	if from.After(to) {
		ParamError(c, "from must not be after to")
		return
	}

	events, err := s.Queries.EventsBetween(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		s.logger().Error("export query failed", zap.Error(err))
		ServerError(c)
		return
	}
	data, err := export.EventsWorkbook(events)
	if err != nil {
		s.logger().Error("export workbook failed", zap.Error(err))
		ServerError(c)
		return
	}

	name := fmt.Sprintf("events_%s_%s.xlsx", from.Format(exportDateLayout), to.Format(exportDateLayout))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, data)
}

type cameraView struct {
	ID        uint   `json:"id"`
	RoomName  string `json:"room_name"`
	RTSPURL   string `json:"rtsp_url"`
	Status    string `json:"status"`
	Streaming bool   `json:"streaming"`
}

func (s *Server) handleCameras(c *gin.Context) {
	cams, err := s.Queries.ListCameras(c.Request.Context())
	if err != nil {
		s.logger().Error("list cameras failed", zap.Error(err))
		ServerError(c)
		return
	}

	out := make([]cameraView, 0, len(cams))
	for _, cam := range cams {
		v := cameraView{
			ID:      cam.ID,
			RTSPURL: camera.RedactSource(cam.RTSPURL),
			Status:  cam.Status,
		}
		if cam.Room != nil {
			v.RoomName = cam.Room.DisplayName()
			v.Streaming = s.Cameras.Has(v.RoomName)
		}
		out = append(out, v)
	}

	Success(c, gin.H{
		"cameras": out,
		"rooms":   s.Cameras.Rooms(),
		"streams": s.Cameras.Streams(),
	})
}

func (s *Server) handleFloors(c *gin.Context) {
	floors, err := s.Queries.ListFloors(c.Request.Context())
	s.respondList(c, "floors", floors, err)
}

func (s *Server) handleWards(c *gin.Context) {
	wards, err := s.Queries.ListWards(c.Request.Context())
	s.respondList(c, "wards", wards, err)
}

func (s *Server) handleRooms(c *gin.Context) {
	rooms, err := s.Queries.ListRooms(c.Request.Context())
	s.respondList(c, "rooms", rooms, err)
}

func (s *Server) handleBeds(c *gin.Context) {
	beds, err := s.Queries.ListAllBeds(c.Request.Context())
	s.respondList(c, "beds", beds, err)
}

func (s *Server) handleColors(c *gin.Context) {
	colors, err := s.Queries.ListColors(c.Request.Context())
	s.respondList(c, "colors", colors, err)
}

func (s *Server) respondList(c *gin.Context, key string, list interface{}, err error) {
	if err != nil {
		s.logger().Error("config query failed", zap.String("list", key), zap.Error(err))
		ServerError(c)
		return
	}
	Success(c, gin.H{key: list})
}
