// Package synth builds everything that goes over the wire to the console: the
// target relevance expression, the completion-offset duration string and the
// action document itself.
package synth

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fixstream/fixstream/internal/models"
)

// ErrNonPositiveWindow is returned before any external submission when the
// requested completion window is zero or negative.
var ErrNonPositiveWindow = errors.New("duration must be greater than zero")

// LocalUTCOffset reports this machine's current offset from UTC. The console
// treats the offset field as a local delta relative to UTC, so the computed
// window has to be corrected by this amount or deadlines drift by the
// timezone offset.
func LocalUTCOffset() time.Duration {
	_, secs := time.Now().Zone()
	return time.Duration(secs) * time.Second
}

// ComputeCompletionOffset normalizes the window to milliseconds, subtracts the
// supplied local-UTC offset (sign included) and encodes the result. The
// correction can push the delta negative; the encoding carries the sign.
func ComputeCompletionOffset(w models.Window, localUTCOffset time.Duration) (string, error) {
	ms := w.Millis()
	if ms <= 0 {
		return "", ErrNonPositiveWindow
	}
	corrected := ms - localUTCOffset.Milliseconds()
	return EncodeOffset(corrected), nil
}

// EncodeOffset renders a millisecond delta in the console's duration grammar:
// optional leading minus, "P", optional whole days, then "T" followed by the
// nonzero hour/minute/second components. A zero delta encodes as "PT0S".
func EncodeOffset(ms int64) string {
	var b strings.Builder
	if ms < 0 {
		b.WriteByte('-')
		ms = -ms
	}
	b.WriteByte('P')

	secs := ms / 1000
	days := secs / 86400
	secs %= 86400
	hours := secs / 3600
	secs %= 3600
	mins := secs / 60
	secs %= 60

	if days > 0 {
		b.WriteString(strconv.FormatInt(days, 10))
		b.WriteByte('D')
	}
	b.WriteByte('T')
	if hours > 0 {
		b.WriteString(strconv.FormatInt(hours, 10))
		b.WriteByte('H')
	}
	if mins > 0 {
		b.WriteString(strconv.FormatInt(mins, 10))
		b.WriteByte('M')
	}
	if secs > 0 {
		b.WriteString(strconv.FormatInt(secs, 10))
		b.WriteByte('S')
	}
	out := b.String()
	if out == "PT" || out == "-PT" {
		return "PT0S"
	}
	return out
}

var offsetRe = regexp.MustCompile(`^(-)?P(?:(\d+)D)?T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// DecodeOffset parses a duration string produced by EncodeOffset back into a
// millisecond delta.
func DecodeOffset(s string) (int64, error) {
	m := offsetRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("malformed duration string %q", s)
	}
	var secs int64
	for i, mult := range []int64{0, 0, 86400, 3600, 60, 1} {
		if i < 2 || m[i] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed duration component %q: %w", m[i], err)
		}
		secs += n * mult
	}
	ms := secs * 1000
	if m[1] == "-" {
		ms = -ms
	}
	return ms, nil
}
