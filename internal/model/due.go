package model

import "time"

// IsDue reports whether a query needs a fresh download at now. A query with
// no successful download yet is always due; otherwise it is due once its
// effective interval has elapsed since the last success. Failed attempts
// never suppress due-ness.
func IsDue(q Query, lastSuccess time.Time, hasSuccess bool, now time.Time) bool {
	if !hasSuccess {
		return true
	}
	return now.Sub(lastSuccess) >= q.EffectiveInterval()
}
