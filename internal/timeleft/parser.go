// Package timeleft turns the auction site's "time remaining" text into minutes.
package timeleft

import (
	"regexp"
	"strconv"
	"strings"
)

// Result is the normalized form of a time-left string. Minutes is nil when the
// text could not be interpreted.
type Result struct {
	Minutes *int
	Closed  bool
}

var (
	closedMarker = regexp.MustCompile(`(?i)^\s*(avslutad|stängd|closed|ended)`)
	underMinute  = regexp.MustCompile(`(?i)^\s*(<\s*1\s*m|mindre än en minut|less than (a|one) minute)`)
	component    = regexp.MustCompile(`(?i)(\d+)\s*([dhms])\b`)
	separators   = regexp.MustCompile(`[\s,]+`)
)

// maxSeconds bounds the accepted total at ten years. Anything larger is
// not a real auction and would overflow the sum.
const maxSeconds = 10 * 365 * 24 * 60 * 60

var unitSeconds = map[byte]int{
	'd': 24 * 60 * 60,
	'h': 60 * 60,
	'm': 60,
	's': 1,
}

// Parse interprets text such as "2d, 5h, 42m, 59s", "< 1m" or "Avslutad".
func Parse(text string) Result {
	if IsClosedMarker(text) {
		return Result{Minutes: minutes(0), Closed: true}
	}
	if underMinute.MatchString(text) {
		return Result{Minutes: minutes(0)}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}
	}

	matches := component.FindAllStringSubmatchIndex(trimmed, -1)
	if len(matches) == 0 {
		return Result{}
	}

	// Everything outside the matched components must be separators, otherwise
	// the text is something we do not understand.
	var rest strings.Builder
	prev := 0
	seen := make(map[byte]bool, 4)
	total := 0
	for _, m := range matches {
		rest.WriteString(trimmed[prev:m[0]])
		prev = m[1]

		n, err := strconv.Atoi(trimmed[m[2]:m[3]])
		if err != nil {
			return Result{}
		}
		unit := strings.ToLower(trimmed[m[4]:m[5]])[0]
		if seen[unit] {
			return Result{}
		}
		seen[unit] = true

		size := unitSeconds[unit]
		if n > (maxSeconds-total)/size {
			return Result{}
		}
		total += n * size
	}
	rest.WriteString(trimmed[prev:])
	if separators.ReplaceAllString(rest.String(), "") != "" {
		return Result{}
	}

	return Result{Minutes: minutes(total / 60)}
}

// IsClosedMarker reports whether text starts with one of the closed-state words.
func IsClosedMarker(text string) bool {
	return closedMarker.MatchString(text)
}

func minutes(n int) *int {
	return &n
}
