// internal/decoder/decoder.go
package decoder

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	frameStart = 0x02
	frameEnd   = 0x03

	// tamanho mínimo do payload sem STX/ETX
	minPayload = 24

	// Unknown é o valor usado quando um campo não pôde ser extraído.
	Unknown = "UNKNOWN"

	// DeviceMarker identifica a família de terminais IP.
	DeviceMarker = "INTERCALL-IP"

	zeroTimestamp = "0000-00-00 00:00:00"
)

var (
	ErrFraming      = errors.New("frame must start with 0x02 and end with 0x03")
	ErrShortPayload = errors.New("payload shorter than 24 bytes")
)

// Alert é o resultado de um pacote decodificado.
type Alert struct {
	DeviceTimestamp string `json:"device_timestamp"`
	Room            string `json:"room"`
	Bed             string `json:"bed"`
	DeviceType      string `json:"device_type"`
	EventType       string `json:"event_type"`
	RawHex          string `json:"raw_hex"`
}

func (a Alert) HasBed() bool {
	return a.Bed != "" && a.Bed != Unknown
}

// Title é o leito quando identificado, senão o quarto.
func (a Alert) Title() string {
	if a.HasBed() {
		return a.Bed
	}
	return a.Room
}

// Subtitle só carrega o quarto quando o título já é o leito.
func (a Alert) Subtitle() string {
	if a.HasBed() {
		return a.Room
	}
	return ""
}

// Decode valida o enquadramento STX/ETX e extrai os campos do pacote.
// Qualquer pânico durante a extração vira erro; nunca há resultado parcial.
func Decode(raw []byte) (alert Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			alert = Alert{}
			err = fmt.Errorf("decode panic: %v", r)
		}
	}()

	if len(raw) < 2 || raw[0] != frameStart || raw[len(raw)-1] != frameEnd {
		return Alert{}, ErrFraming
	}
	payload := raw[1 : len(raw)-1]
	if len(payload) < minPayload {
		return Alert{}, fmt.Errorf("%w: got %d", ErrShortPayload, len(payload))
	}

	text := latin1(payload)

	alert = Alert{
		DeviceTimestamp: deviceTimestamp(payload),
		Room:            firstMatch(roomMatchers, text),
		Bed:             firstMatch(bedMatchers, text),
		DeviceType:      firstMatch(deviceMatchers, text),
		EventType:       extractEvent(text),
		RawHex:          hex.EncodeToString(raw),
	}
	return alert, nil
}

// DecodeHex aceita o frame em hexadecimal (com ou sem espaços).
func DecodeHex(s string) (Alert, error) {
	s = strings.Join(strings.Fields(s), "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Alert{}, fmt.Errorf("invalid hex: %w", err)
	}
	return Decode(raw)
}

// bytes 16..24 do payload: ano, mês, dia, hora, minuto, segundo (+2 reservados).
// Valores fora de faixa são formatados como vieram.
func deviceTimestamp(payload []byte) string {
	end := 24
	if len(payload) < end {
		end = len(payload)
	}
	if end-16 < 6 {
		return zeroTimestamp
	}
	b := payload[16:end]

	year := int(b[0])
	if year < 100 {
		year += 2000
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		year, b[1], b[2], b[3], b[4], b[5])
}

func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

func extractEvent(text string) string {
	if i := strings.Index(text, DeviceMarker); i >= 0 {
		tail := []rune(text[i+len(DeviceMarker):])
		if len(tail) > 32 {
			tail = tail[:32]
		}
		cleaned := strings.ReplaceAll(string(tail), "\x00", "")
		words := strings.FieldsFunc(cleaned, func(r rune) bool {
			return unicode.IsSpace(r) || !unicode.IsPrint(r)
		})
		if len(words) == 0 {
			return Unknown
		}
		return words[0]
	}
	return firstMatch(keywordMatchers, text)
}
