// internal/httpapi/router.go
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sua-org/nursecall-bus/internal/cache"
	"github.com/sua-org/nursecall-bus/internal/camera"
	"github.com/sua-org/nursecall-bus/internal/dispatcher"
	"github.com/sua-org/nursecall-bus/internal/metrics"
	"github.com/sua-org/nursecall-bus/internal/store"
)

// Queries são as leituras que a API faz no banco (store.GormStore).
type Queries interface {
	RecentEvents(ctx context.Context, limit int) ([]store.Event, error)
	EventsBetween(ctx context.Context, from, to time.Time) ([]store.Event, error)
	Stats(ctx context.Context, now time.Time) (store.Stats, error)
	ListFloors(ctx context.Context) ([]store.Floor, error)
	ListWards(ctx context.Context) ([]store.Ward, error)
	ListRooms(ctx context.Context) ([]store.Room, error)
	ListAllBeds(ctx context.Context) ([]store.Bed, error)
	ListColors(ctx context.Context) ([]store.ColorScheme, error)
	ListCameras(ctx context.Context) ([]store.Camera, error)
	FindCamera(ctx context.Context, id uint) (*store.Camera, error)
	ActiveCameraRooms(ctx context.Context) (map[uint]bool, error)
	HealthCheck(ctx context.Context) error
}

// Cameras é o camera.Manager visto pela API.
type Cameras interface {
	Has(room string) bool
	HasFrame(room string) bool
	Frame(room string) []byte
	Rooms() []string
	Streams() []camera.StreamInfo
}

type StatsCache interface {
	Get(ctx context.Context, load cache.StatsLoader) (store.Stats, error)
	Ping(ctx context.Context) error
}

// Hub recebe os assinantes do /ws (dispatcher.Dispatcher).
type Hub interface {
	Subscribe(sub dispatcher.Subscriber) (uuid.UUID, func())
	Len() int
}

// Server agrupa as dependências dos handlers. Stats, Metrics e
// Placeholder são opcionais.
type Server struct {
	Queries     Queries
	Cameras     Cameras
	Hub         Hub
	Stats       StatsCache
	Metrics     *metrics.Metrics
	Placeholder func() []byte
	VideoFPS    int
	Location    *time.Location

	AllowOrigin string
	RateLimit   rate.Limit
	RateBurst   int

	Logger *zap.Logger
	Now    func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger.Named("http")
}

func (s *Server) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Router monta o engine gin com todas as rotas.
func (s *Server) Router() *gin.Engine {
	if s.Placeholder == nil {
		s.Placeholder = camera.Placeholder
	}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(s.logger()), cors(s.AllowOrigin))

	r.GET("/ws", s.handleWebsocket)

	// feeds MJPEG; HEAD responde 200 sempre (checagem do painel)
	r.GET("/camera/*room", s.handleCameraByRoom)
	r.HEAD("/camera/*room", headOK)
	r.GET("/video_feed/:camera_id", s.handleVideoFeed)
	r.HEAD("/video_feed/:camera_id", headOK)

	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	registerRoutes(r, s)
	return r
}

func registerRoutes(r *gin.Engine, s *Server) {
	api := r.Group("/api")
	if s.RateLimit > 0 {
		api.Use(ipRateLimiter(s.RateLimit, s.RateBurst))
	}

	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/cameras", s.handleCameras)

	events := api.Group("/events")
	events.GET("/recent", s.handleRecentEvents)
	events.GET("/export", s.handleExportEvents)

	registerConfigRoutes(api.Group("/config"), s)
}

func registerConfigRoutes(g *gin.RouterGroup, s *Server) {
	g.GET("/floors", s.handleFloors)
	g.GET("/wards", s.handleWards)
	g.GET("/rooms", s.handleRooms)
	g.GET("/beds", s.handleBeds)
	g.GET("/colors", s.handleColors)
}

func headOK(c *gin.Context) {
	c.Status(http.StatusOK)
}
