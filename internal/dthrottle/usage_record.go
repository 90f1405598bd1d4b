package dthrottle

// UsageRecord is the per-tag token bucket. It is created lazily on first
// touch (seeded full, so the first burst of requests on a fresh tag is
// always admitted) and mutated only from the single goroutine that owns
// the enclosing Throttle.
//
// Grounded on throttle.h/.cpp's usage_record, with the token-bucket
// refill idiom cross-checked against PresleyHank-go-lib/ratelimit's
// Ratelimiter.Limit (same "add elapsed*rate, clamp to capacity" shape).
type UsageRecord struct {
	tokens         float64
	lastUpdate     float64
	unreportedHits int
}

// NewUsageRecord seeds a fresh record with a full bucket. last_update is
// left at zero, which Refill treats as "never touched" so the very first
// Refill call only sets the clock without adding tokens the record never
// had a chance to earn.
func NewUsageRecord(burst int) *UsageRecord {
	return &UsageRecord{tokens: float64(burst)}
}

// Refill advances the bucket to time t, adding tokens earned since the
// last update at rate tokens/sec and clamping to burst. t must be
// strictly positive; callers that violate this have a bug, not a
// recoverable error (§4.2, §7 "internal invariant violation: abort").
func (r *UsageRecord) Refill(burst int, rate float64, t float64) float64 {
	if t <= 0 {
		panic("dthrottle: Refill called with non-positive t")
	}
	if r.lastUpdate > 0 {
		elapsed := t - r.lastUpdate
		r.tokens += elapsed * rate
		if r.tokens > float64(burst) {
			r.tokens = float64(burst)
		}
	}
	r.lastUpdate = t
	return r.tokens
}

// CheckRequest refills the bucket to t and, if the balance is positive
// (a fractional balance counts), consumes one token and counts the hit. Refill always runs, even on rejection,
// so a hammering client does not accrue refill debt across repeated
// rejects (spec.md §9, open question 2).
func (r *UsageRecord) CheckRequest(burst int, rate float64, t float64) bool {
	if r.Refill(burst, rate, t) > 0 {
		r.tokens--
		r.unreportedHits++
		return true
	}
	return false
}

// RecordExternal debits count tokens without refilling first. The bucket
// may go negative; a later Refill will pull it back toward burst. This
// is the mechanism by which a peer's observed hits slow this instance
// down, and it deliberately does not refill first (spec.md §9, open
// question 1): a long-idle bucket absorbs the debit before its own
// clock catches up, reproducing the original's observed behavior.
func (r *UsageRecord) RecordExternal(count int) {
	r.tokens -= float64(count)
}

// TakeUnreportedHits returns the hit count accumulated since the last
// call and resets it to zero. Because the whole engine runs on a single
// goroutine, this read-and-clear is atomic with respect to CheckRequest.
func (r *UsageRecord) TakeUnreportedHits() int {
	hits := r.unreportedHits
	r.unreportedHits = 0
	return hits
}

// Tokens returns the current token count without mutating the record,
// for diagnostics (Throttle.DumpState).
func (r *UsageRecord) Tokens() float64 {
	return r.tokens
}

// LastUpdate returns the timestamp of the last Refill, for diagnostics.
func (r *UsageRecord) LastUpdate() float64 {
	return r.lastUpdate
}
