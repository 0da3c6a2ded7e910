package session

import (
	"fmt"
	"strings"
	"time"
)

// KeyLayout is the time layout of a session directory name.
const KeyLayout = "2006_01_02_15_04_05"

// NewKey returns the session key for a capture started at t.
func NewKey(t time.Time) string {
	return t.Format(KeyLayout)
}

// Label turns a key of six underscore-separated numeric fields into
// "YYYY/MM/DD HH:MM:SS".
func Label(key string) (string, error) {
	fields := strings.Split(key, "_")
	if len(fields) != 6 {
		return "", fmt.Errorf("%w: %q has %d fields", ErrMalformedKey, key, len(fields))
	}
	for _, f := range fields {
		if f == "" || strings.TrimLeft(f, "0123456789") != "" {
			return "", fmt.Errorf("%w: %q has non-numeric field %q", ErrMalformedKey, key, f)
		}
	}

	year, month, day, hour, minute, second := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	return fmt.Sprintf("%s/%s/%s %s:%s:%s", year, month, day, hour, minute, second), nil
}
