package domain

import "time"

// ResetAfterGrace moves a CANCELED record back to NONE once its paid period
// plus grace has elapsed. LastAppliedEventID is kept so older events stay stale.
func ResetAfterGrace(record Record, now time.Time, grace time.Duration) (Record, bool) {
	if record.Status != StatusCanceled {
		return record, false
	}
	anchor := record.CurrentPeriodEnd
	if anchor == nil {
		anchor = record.LastAppliedAt
	}
	if anchor == nil || now.Before(anchor.Add(grace)) {
		return record, false
	}

	next := record
	next.Status = StatusNone
	next.Version = record.Version + 1
	return next, true
}
