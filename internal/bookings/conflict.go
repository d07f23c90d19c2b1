package bookings

import "time"

// openEndedHorizon caps open-ended bookings for comparison purposes. A
// booking without an end date blocks the property for ten years from its
// start.
const openEndedHorizonYears = 10

// NormalizeDate strips the time-of-day component, anchoring the value at UTC
// midnight. All booking dates are date-only.
func NormalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EffectiveEnd resolves the comparable end of an interval: the end date
// itself, or start plus the open-ended horizon when no end is set.
func EffectiveEnd(start time.Time, end *time.Time) time.Time {
	if end != nil {
		return NormalizeDate(*end)
	}
	return NormalizeDate(start).AddDate(openEndedHorizonYears, 0, 0)
}

// Overlaps reports whether two date intervals share at least one day. Bounds
// are inclusive on both sides: a booking ending on day D conflicts with one
// starting on day D, since both parties hold the property that day.
func Overlaps(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) bool {
	as := NormalizeDate(aStart)
	bs := NormalizeDate(bStart)
	ae := EffectiveEnd(aStart, aEnd)
	be := EffectiveEnd(bStart, bEnd)
	return !as.After(be) && !bs.After(ae)
}
