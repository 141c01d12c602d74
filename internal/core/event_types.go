// internal/core/event_types.go
package core

import "strings"

// Palavras-chave de evento emitidas pelos terminais de chamada, na ordem
// em que o decoder tenta casar quando o marcador de dispositivo não aparece.
var EventKeywords = []string{
	"Call",
	"Accept",
	"Cancel",
	"Presence",
	"Reset",
	"ROOM SERVICE",
	"Doctor Present",
	"Present",
	"CATERING SERVICE",
	"Alarm",
	"Assistance",
	"LowBattery",
	"Emergency",
	"Isolate",
}

// Eventos contados como urgentes no painel.
var UrgentEventTypes = []string{"Emergency", "Alarm", "Assistance"}

// Eventos contados como chamada em andamento.
var OngoingEventTypes = []string{"Call"}

var urgentEventTypeSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(UrgentEventTypes))
	for _, t := range UrgentEventTypes {
		m[strings.ToLower(t)] = struct{}{}
	}
	return m
}()

// IsReset indica se o tipo de evento encerra a sessão de chamada do leito.
func IsReset(eventType string) bool {
	return strings.EqualFold(strings.TrimSpace(eventType), "reset")
}

func IsUrgent(eventType string) bool {
	_, ok := urgentEventTypeSet[strings.ToLower(strings.TrimSpace(eventType))]
	return ok
}
