package dispatcher

import (
	"net/url"
	"strings"

	"github.com/sua-org/nursecall-bus/internal/core"
	"github.com/sua-org/nursecall-bus/internal/decoder"
	"github.com/sua-org/nursecall-bus/internal/store"
)

const payloadTimeLayout = "2006-01-02T15:04:05"

// CameraStatus é o que o payload precisa saber do camera.Manager.
type CameraStatus interface {
	Has(room string) bool
	HasFrame(room string) bool
}

// BuildPayload monta a mensagem do feed ao vivo. ev deve vir com Room (e
// Ward/Floor) e Bed preenchidos quando resolvidos; configured indica se o
// quarto tem câmera ativa cadastrada.
func BuildPayload(ev *store.Event, alert decoder.Alert, cams CameraStatus, configured bool) core.EventPayload {
	p := core.EventPayload{
		ID:              ev.ID,
		CallSessionID:   ev.CallSessionID,
		EventType:       ev.EventType,
		Event:           ev.EventType,
		Status:          ev.Status,
		DeviceTimestamp: ev.DeviceTimestamp,
		DeviceType:      ev.DeviceType,
		Title:           alert.Title(),
		Subtitle:        alert.Subtitle(),
		BedID:           ev.BedID,
		RoomID:          ev.RoomID,

		CameraConfigured: configured,
	}
	if !ev.SystemTimestamp.IsZero() {
		p.SystemTimestamp = ev.SystemTimestamp.Format(payloadTimeLayout)
	}

	room := ev.Room
	if bed := ev.Bed; bed != nil {
		p.BedName = bed.BedName
		p.BedNumber = bed.BedNumber
		if room == nil {
			room = bed.Room
		}
	}
	if room != nil {
		p.RoomName = room.RoomName
		p.RoomNumber = room.RoomNumber
		if w := room.Ward; w != nil {
			p.WardName = w.Name
			if f := w.Floor; f != nil {
				p.FloorName = f.Name
			}
		}

		key := strings.TrimSpace(room.DisplayName())
		if key != "" && cams != nil && cams.Has(key) {
			p.CameraAvailable = true
			p.CameraLive = cams.HasFrame(key)
			u := CameraPath(key)
			p.CameraURL = &u
		}
	}
	return p
}

// CameraPath é a rota MJPEG do quarto.
func CameraPath(room string) string {
	return "/camera/" + url.PathEscape(room)
}
