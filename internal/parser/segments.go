package parser

import (
	"fmt"
	"strings"
)

// segmentWidth is the payload width of one numbered remittance segment.
const segmentWidth = 35

// splitSegments breaks a remittance text of the form "01<text>02<text>..."
// into its segments. A marker counts when it sits on the fixed segment width
// or follows whitespace. Texts where no marker qualifies that way are split
// again at markers glued to the preceding word. Texts without a leading "01"
// form one segment.
func splitSegments(info string) []string {
	if !strings.HasPrefix(info, "01") {
		if s := strings.TrimSpace(info); s != "" {
			return []string{s}
		}
		return nil
	}

	segments := split(info[2:], nextMarker)
	if len(segments) == 1 {
		segments = split(info[2:], nextGluedMarker)
	}
	return segments
}

func split(rest string, next func(s, marker string) int) []string {
	var segments []string
	for n := 2; ; n++ {
		idx := next(rest, fmt.Sprintf("%02d", n))
		if idx < 0 {
			segments = append(segments, strings.TrimSpace(rest))
			break
		}
		segments = append(segments, strings.TrimSpace(rest[:idx]))
		rest = rest[idx+2:]
	}
	return segments
}

func nextMarker(s, marker string) int {
	if len(s) >= segmentWidth+2 && s[segmentWidth:segmentWidth+2] == marker {
		return segmentWidth
	}
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], marker)
		if i < 0 {
			return -1
		}
		i += from
		if i > 0 && (s[i-1] == ' ' || s[i-1] == '\t') && i+2 < len(s) && s[i+2] != ' ' {
			return i
		}
		from = i + 1
	}
	return -1
}

// nextGluedMarker finds marker directly followed by a letter or digit,
// wherever it occurs.
func nextGluedMarker(s, marker string) int {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], marker)
		if i < 0 {
			return -1
		}
		i += from
		if i+2 < len(s) && isAlnum(s[i+2]) {
			return i
		}
		from = i + 1
	}
	return -1
}

func isAlnum(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
