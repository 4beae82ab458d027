package logging

import "time"

const (
	// consoleTimestampLayout keeps milliseconds so claims and finalizes that
	// land in the same second still read in order.
	consoleTimestampLayout = "2006-01-02 15:04:05.000"
	// jsonTimestampLayout matches the timestamps the HTTP API returns.
	jsonTimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(consoleTimestampLayout)
}
