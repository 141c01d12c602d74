// internal/store/models.go
package store

import "time"

const (
	SessionActive = "active"
	SessionEnded  = "ended"

	EventActive  = "active"
	EventCleared = "cleared"
)

type Floor struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	FloorNumber int       `gorm:"not null" json:"floor_number"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Status      string    `gorm:"type:varchar(20);default:active" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Wards       []Ward    `json:"-"`
}

type Ward struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FloorID     uint      `gorm:"not null;index" json:"floor_id"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	WardType    string    `gorm:"type:varchar(50)" json:"ward_type,omitempty"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Status      string    `gorm:"type:varchar(20);default:active" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Floor       *Floor    `json:"floor,omitempty"`
}

// Room carrega o IP do terminal de chamada (system_ip), usado para achar
// o quarto a partir da origem do datagrama.
type Room struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WardID         uint      `gorm:"not null;index" json:"ward_id"`
	RoomNumber     string    `gorm:"type:varchar(20);not null" json:"room_number"`
	RoomName       string    `gorm:"type:varchar(100)" json:"room_name"`
	RoomType       string    `gorm:"type:varchar(50)" json:"room_type,omitempty"`
	Capacity       int       `gorm:"default:1" json:"capacity"`
	Status         string    `gorm:"type:varchar(20);default:active" json:"status"`
	SystemDeviceID *string   `gorm:"type:varchar(100);uniqueIndex" json:"system_device_id,omitempty"`
	SystemIP       *string   `gorm:"type:varchar(45);uniqueIndex" json:"system_ip,omitempty"`
	SystemMAC      *string   `gorm:"type:varchar(17);uniqueIndex" json:"system_mac,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Ward           *Ward     `json:"ward,omitempty"`
}

// DisplayName é o nome usado como chave da câmera do quarto.
func (r Room) DisplayName() string {
	if r.RoomName != "" {
		return r.RoomName
	}
	return r.RoomNumber
}

type Bed struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    *uint     `gorm:"index" json:"room_id"`
	BedNumber string    `gorm:"type:varchar(20);not null" json:"bed_number"`
	BedName   string    `gorm:"type:varchar(100)" json:"bed_name"`
	Status    string    `gorm:"type:varchar(20);default:available" json:"status"`
	CameraID  *uint     `json:"camera_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Room      *Room     `json:"room,omitempty"`
}

type Camera struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomID     uint      `gorm:"not null;index" json:"room_id"`
	CameraName string    `gorm:"type:varchar(100);not null" json:"camera_name"`
	RTSPURL    string    `gorm:"column:rtsp_url;type:varchar(500)" json:"rtsp_url"`
	IPAddress  string    `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	Username   string    `gorm:"type:varchar(100)" json:"-"`
	Password   string    `gorm:"type:varchar(100)" json:"-"`
	Port       int       `gorm:"default:554" json:"port"`
	Status     string    `gorm:"type:varchar(20);default:active" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Room       *Room     `json:"room,omitempty"`
}

type CallSession struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	BedID            uint       `gorm:"not null;index" json:"bed_id"`
	CurrentEventType string     `gorm:"type:varchar(50)" json:"current_event_type"`
	Status           string     `gorm:"type:varchar(20);default:active;index" json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// Event é append-only: uma linha por pacote decodificado, mesmo sem quarto/leito.
type Event struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	RoomID          *uint        `gorm:"index" json:"room_id"`
	BedID           *uint        `gorm:"index" json:"bed_id"`
	CallSessionID   *uint        `gorm:"index" json:"call_session_id"`
	DeviceTimestamp string       `gorm:"type:varchar(20)" json:"device_timestamp"`
	SystemTimestamp time.Time    `gorm:"index" json:"system_timestamp"`
	RoomIdentifier  string       `gorm:"type:varchar(100)" json:"room_identifier"`
	DeviceType      string       `gorm:"type:varchar(50)" json:"device_type"`
	EventType       string       `gorm:"type:varchar(50);index" json:"event_type"`
	Status          string       `gorm:"type:varchar(20);default:active" json:"status"`
	AcknowledgedAt  *time.Time   `json:"acknowledged_at,omitempty"`
	ClearedAt       *time.Time   `json:"cleared_at,omitempty"`
	RawHex          string       `gorm:"type:text" json:"raw_hex"`
	Room            *Room        `json:"room,omitempty"`
	Bed             *Bed         `json:"bed,omitempty"`
	CallSession     *CallSession `json:"-"`
}

type ColorScheme struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	EventType string `gorm:"type:varchar(50);uniqueIndex;not null" json:"event_type"`
	Color     string `gorm:"type:varchar(7);not null" json:"color"`
}

// CameraSource liga um quarto à origem de vídeo configurada.
type CameraSource struct {
	Room   Room
	Camera Camera
}

// AllModels na ordem de criação (pais antes dos filhos).
func AllModels() []interface{} {
	return []interface{}{
		&Floor{}, &Ward{}, &Room{}, &Camera{}, &Bed{},
		&CallSession{}, &Event{}, &ColorScheme{},
	}
}
