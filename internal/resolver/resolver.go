// internal/resolver/resolver.go
package resolver

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/sua-org/nursecall-bus/internal/decoder"
	"github.com/sua-org/nursecall-bus/internal/store"
)

var digitRunRe = regexp.MustCompile(`\b\d+\b`)

// Lookup é o subconjunto do store que o resolver usa.
type Lookup interface {
	FindRoomBySourceIP(ctx context.Context, addr string) (*store.Room, error)
	ListBeds(ctx context.Context, roomID uint) ([]store.Bed, error)
}

// Resolve acha o quarto pelo IP de origem e o leito pelas dicas do pacote.
// Sem quarto, ou quarto sem leitos, devolve nil sem erro.
func Resolve(ctx context.Context, lk Lookup, sourceIP string, alert decoder.Alert) (*store.Room, *store.Bed, error) {
	room, err := lk.FindRoomBySourceIP(ctx, sourceIP)
	if err != nil || room == nil {
		return nil, nil, err
	}

	beds, err := lk.ListBeds(ctx, room.ID)
	if err != nil {
		return room, nil, err
	}
	return room, MatchBed(beds, Tokens(alert)), nil
}

// Tokens monta a lista ordenada de dicas: leito, dispositivo, quarto.
func Tokens(alert decoder.Alert) []string {
	var out []string
	for _, t := range []string{alert.Bed, alert.DeviceType, alert.Room} {
		t = strings.TrimSpace(t)
		if t == "" || t == decoder.Unknown {
			continue
		}
		out = append(out, t)
	}
	return out
}

// MatchBed aplica as quatro camadas em ordem e para na primeira que casar.
// beds deve vir ordenado por id.
func MatchBed(beds []store.Bed, tokens []string) *store.Bed {
	if len(beds) == 0 {
		return nil
	}
	for _, tier := range tiers {
		if b := tier(beds, tokens); b != nil {
			return b
		}
	}
	return nil
}

type tier func(beds []store.Bed, tokens []string) *store.Bed

var tiers = []tier{exactTier, normalizedTier, numericTier, fallbackTier}

func exactTier(beds []store.Bed, tokens []string) *store.Bed {
	for _, tok := range tokens {
		for i := range beds {
			b := &beds[i]
			num, name := strings.TrimSpace(b.BedNumber), strings.TrimSpace(b.BedName)
			if (num != "" && strings.EqualFold(tok, num)) || (name != "" && strings.EqualFold(tok, name)) {
				return b
			}
		}
	}
	return nil
}

// leito por fora, tokens por dentro: o primeiro leito (menor id) que casar vence.
func normalizedTier(beds []store.Bed, tokens []string) *store.Bed {
	normTokens := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if n := normalize(t); n != "" {
			normTokens = append(normTokens, n)
		}
	}

	for i := range beds {
		b := &beds[i]
		for _, field := range []string{normalize(b.BedNumber), normalize(b.BedName)} {
			if field == "" {
				continue
			}
			for _, nt := range normTokens {
				if strings.Contains(nt, field) || strings.Contains(field, nt) {
					return b
				}
			}
		}
	}
	return nil
}

func numericTier(beds []store.Bed, tokens []string) *store.Bed {
	digits := digitRunRe.FindAllString(strings.Join(tokens, " "), -1)
	for _, d := range digits {
		for i := range beds {
			if strings.TrimSpace(beds[i].BedNumber) == d {
				return &beds[i]
			}
		}
	}
	return nil
}

// Não é um match de verdade: garante que o evento nunca fique sem leito
// quando o quarto tem algum.
func fallbackTier(beds []store.Bed, _ []string) *store.Bed {
	best := &beds[0]
	for i := range beds[1:] {
		if beds[i+1].ID < best.ID {
			best = &beds[i+1]
		}
	}
	return best
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
