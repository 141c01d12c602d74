package decoder

import (
	"regexp"
	"strings"

	"github.com/sua-org/nursecall-bus/internal/core"
)

// matcher devolve o valor extraído ou "" quando não casa.
type matcher func(text string) string

var (
	bedNumberedRe = regexp.MustCompile(`(?:BED|Bed)\s*(?:No\.?|NO\.?|#)?\s*(\d{1,4})`)
	bedLooseRe    = regexp.MustCompile(`(?i)[A-Za-z0-9 \-]{0,40}?BED[ \-]*\d{1,4}`)
	roomRe        = regexp.MustCompile(`(?i)[A-Za-z0-9 \t\-]{0,40}?ROOM\s*\d{0,4}`)
	roomShortRe   = regexp.MustCompile(`(?i)[A-Za-z0-9 \t\-]{0,40}?\bRM\s*\d{0,4}\b`)
	printableRe   = regexp.MustCompile(`[A-Za-z0-9\-\s]{5,40}`)
	deviceTokenRe = regexp.MustCompile(`[A-Z0-9\-_]{6,20}`)
)

var bedMatchers = []matcher{
	func(text string) string {
		m := bedNumberedRe.FindStringSubmatch(text)
		if m == nil {
			return ""
		}
		return "Bed No " + m[1]
	},
	regexpMatcher(bedLooseRe),
}

var roomMatchers = []matcher{
	regexpMatcher(roomRe),
	regexpMatcher(roomShortRe),
	func(text string) string {
		for _, m := range printableRe.FindAllString(text, -1) {
			if c := clean(m); c != "" {
				return c
			}
		}
		return ""
	},
}

var deviceMatchers = []matcher{
	func(text string) string {
		if strings.Contains(text, DeviceMarker) {
			return DeviceMarker
		}
		return ""
	},
	regexpMatcher(deviceTokenRe),
}

var keywordMatchers = func() []matcher {
	out := make([]matcher, 0, len(core.EventKeywords))
	for _, kw := range core.EventKeywords {
		kw := kw
		upper := strings.ToUpper(kw)
		out = append(out, func(text string) string {
			if strings.Contains(strings.ToUpper(text), upper) {
				return kw
			}
			return ""
		})
	}
	return out
}()

func regexpMatcher(re *regexp.Regexp) matcher {
	return func(text string) string {
		return clean(re.FindString(text))
	}
}

func firstMatch(matchers []matcher, text string) string {
	for _, m := range matchers {
		if v := m(text); v != "" {
			return v
		}
	}
	return Unknown
}

func clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}
