package services

import "time"

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// GetCurrentTimestamp returns the clock's time as an RFC3339 UTC string, the
// format of every stored createdAt/updatedAt/importedAt attribute.
func GetCurrentTimestamp(now Clock) string {
	return clockOrSystem(now)().UTC().Format(time.RFC3339)
}
