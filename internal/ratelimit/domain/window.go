package domain

import "time"

// Apply admits or denies one request against rec, which is nil for an unseen
// key, and returns the record to persist.
//
// A live block denies. An expired block or an elapsed window starts a fresh
// window. Inside the window requests are counted up to MaxRequests; the
// first request over quota starts a block when BlockDuration is set.
func Apply(rec *Record, cfg Config, now time.Time) (Record, Result) {
	res := Result{Limit: cfg.MaxRequests, Window: cfg.Window}

	if rec == nil {
		return freshWindow(cfg, now, res)
	}

	next := *rec
	switch {
	case next.BlockedUntil != nil && now.Before(*next.BlockedUntil):
		res.Blocked = true
		res.ResetTime = *next.BlockedUntil
		return next, res
	case next.BlockedUntil != nil, now.After(next.WindowResetAt):
		return freshWindow(cfg, now, res)
	case next.Count < cfg.MaxRequests:
		next.Count++
		res.Allowed = true
		res.Remaining = cfg.MaxRequests - next.Count
		res.ResetTime = next.WindowResetAt
		return next, res
	}

	res.ResetTime = next.WindowResetAt
	if cfg.BlockDuration > 0 {
		until := now.Add(cfg.BlockDuration)
		next.BlockedUntil = &until
		res.Blocked = true
		res.ResetTime = until
	}
	return next, res
}

// Evaluate reports what Apply would decide without producing a new record.
func Evaluate(rec *Record, cfg Config, now time.Time) Result {
	res := Result{Limit: cfg.MaxRequests, Window: cfg.Window}

	switch {
	case rec == nil:
	case rec.BlockedUntil != nil && now.Before(*rec.BlockedUntil):
		res.Blocked = true
		res.ResetTime = *rec.BlockedUntil
		return res
	case rec.BlockedUntil != nil, now.After(rec.WindowResetAt):
	default:
		res.ResetTime = rec.WindowResetAt
		res.Remaining = cfg.MaxRequests - rec.Count
		if res.Remaining < 0 {
			res.Remaining = 0
		}
		res.Allowed = res.Remaining > 0
		return res
	}

	res.Allowed = true
	res.Remaining = cfg.MaxRequests
	res.ResetTime = now.Add(cfg.Window)
	return res
}

func freshWindow(cfg Config, now time.Time, res Result) (Record, Result) {
	rec := Record{Count: 1, WindowResetAt: now.Add(cfg.Window)}
	res.Allowed = true
	res.Remaining = cfg.MaxRequests - 1
	res.ResetTime = rec.WindowResetAt
	return rec, res
}
