// internal/core/types.go
package core

import (
	"fmt"
	"net/url"
	"strings"
)

// CameraInfo descreve a câmera de um quarto, vinda do banco ou do tópico /info.
type CameraInfo struct {
	Room     string `json:"room"`
	Name     string `json:"name,omitempty"`
	Source   string `json:"source,omitempty"`
	IP       string `json:"ip,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// StreamURL devolve a origem configurada ou monta uma URL RTSP a partir do IP.
func (c CameraInfo) StreamURL() string {
	if s := strings.TrimSpace(c.Source); s != "" {
		return s
	}
	if strings.TrimSpace(c.IP) == "" {
		return ""
	}
	port := c.Port
	if port == 0 {
		port = 554
	}
	u := url.URL{Scheme: "rtsp", Host: fmt.Sprintf("%s:%d", c.IP, port), Path: "/"}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

// EventPayload é o que vai para os assinantes do feed ao vivo (websocket e MQTT).
type EventPayload struct {
	ID              uint   `json:"id"`
	CallSessionID   *uint  `json:"call_session_id"`
	EventType       string `json:"event_type"`
	Event           string `json:"event"`
	Status          string `json:"status"`
	SystemTimestamp string `json:"system_timestamp"`
	DeviceTimestamp string `json:"device_timestamp"`
	DeviceType      string `json:"device_type"`
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`

	BedID      *uint  `json:"bed_id"`
	BedName    string `json:"bed_name"`
	BedNumber  string `json:"bed_number"`
	RoomID     *uint  `json:"room_id"`
	RoomName   string `json:"room_name"`
	RoomNumber string `json:"room_number"`
	WardName   string `json:"ward_name"`
	FloorName  string `json:"floor_name"`

	CameraAvailable  bool    `json:"camera_available"`
	CameraLive       bool    `json:"camera_live"`
	CameraURL        *string `json:"camera_url"`
	CameraConfigured bool    `json:"camera_configured"`

	// URL pública do snapshot no MinIO
	SnapshotURL string `json:"snapshot_url,omitempty"`
}
