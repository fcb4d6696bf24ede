package common

import (
	"fmt"
	"strconv"
	"strings"
)

// Consensus timestamps are textual fixed-precision instants in the form
// "seconds.nanoseconds", with the nanosecond field zero-padded to nine
// digits. Lexicographic order equals chronological order, so the database
// can index and compare them as plain text.

const nanosPerSecond = int64(1_000_000_000)

// ParseConsensusTimestamp splits a "seconds.nanoseconds" string into its
// integer components. The nanosecond part may be shorter than nine digits
// (it is right-padded), or missing entirely.
func ParseConsensusTimestamp(ts string) (secs int64, nanos int64, err error) {
	if ts == "" {
		return 0, 0, fmt.Errorf("empty consensus timestamp")
	}

	secPart, nanoPart, _ := strings.Cut(ts, ".")

	secs, err = strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid consensus timestamp %q: %w", ts, err)
	}
	if secs < 0 {
		return 0, 0, fmt.Errorf("invalid consensus timestamp %q: negative seconds", ts)
	}

	if nanoPart == "" {
		return secs, 0, nil
	}
	if len(nanoPart) > 9 {
		return 0, 0, fmt.Errorf("invalid consensus timestamp %q: nanosecond field too long", ts)
	}

	// Right-pad to nine digits so "1700000000.5" means 500ms, matching the
	// decimal reading of the mirror encoding.
	padded := nanoPart + strings.Repeat("0", 9-len(nanoPart))
	nanos, err = strconv.ParseInt(padded, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid consensus timestamp %q: %w", ts, err)
	}

	return secs, nanos, nil
}

// FormatConsensusTimestamp renders seconds and nanoseconds in the canonical
// zero-padded form.
func FormatConsensusTimestamp(secs, nanos int64) string {
	return fmt.Sprintf("%d.%09d", secs, nanos)
}

// AddNanos returns the canonical timestamp ts advanced by the given number
// of nanoseconds, carrying into the seconds field as needed.
func AddNanos(ts string, delta int64) (string, error) {
	secs, nanos, err := ParseConsensusTimestamp(ts)
	if err != nil {
		return "", err
	}

	total := nanos + delta
	secs += total / nanosPerSecond
	total %= nanosPerSecond
	if total < 0 {
		secs--
		total += nanosPerSecond
	}

	return FormatConsensusTimestamp(secs, total), nil
}

// CompareConsensusTimestamps returns -1, 0, or 1 as a is before, equal to,
// or after b. Both must be valid canonical timestamps.
func CompareConsensusTimestamps(a, b string) (int, error) {
	aSecs, aNanos, err := ParseConsensusTimestamp(a)
	if err != nil {
		return 0, err
	}
	bSecs, bNanos, err := ParseConsensusTimestamp(b)
	if err != nil {
		return 0, err
	}

	switch {
	case aSecs < bSecs:
		return -1, nil
	case aSecs > bSecs:
		return 1, nil
	case aNanos < bNanos:
		return -1, nil
	case aNanos > bNanos:
		return 1, nil
	default:
		return 0, nil
	}
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
