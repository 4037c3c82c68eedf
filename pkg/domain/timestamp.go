package domain

import "time"

// TimestampLayout renders dd/MM/yyyy hh:mm:ss. The hour is on the 12-hour
// clock, which existing API consumers already parse.
const TimestampLayout = "02/01/2006 03:04:05"

// FormatTimestamp formats t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}
