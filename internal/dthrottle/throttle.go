package dthrottle

// Parameters are the immutable throttling parameters installed under a
// prefix. Whitelisted parameters ignore Burst and Rate entirely.
//
// Grounded on throttle.h's Throttle::Parameters.
type Parameters struct {
	Burst       int
	Rate        float64
	Whitelisted bool
}

// Throttle is the throttling engine: a trie of prefix rules plus a
// tag -> UsageRecord map. It is not safe for concurrent use - by design
// (spec.md §5), every method is called from the single goroutine that
// owns the event loop. Callers that need to feed it from other
// goroutines (gossip delivery, admin rule changes) must serialize through
// that goroutine, e.g. with the command channel Application wires up.
//
// Grounded on throttle.h/.cpp's Throttle class.
type Throttle struct {
	rules   *Trie[Parameters]
	records map[string]*UsageRecord
}

// NewThrottle installs the given burst/rate as the default rule under the
// empty prefix, so lookups are always total.
func NewThrottle(defaultBurst int, defaultRate float64) *Throttle {
	rules := NewTrie[Parameters]()
	rules.Insert("", Parameters{Burst: defaultBurst, Rate: defaultRate})
	return &Throttle{
		rules:   rules,
		records: make(map[string]*UsageRecord),
	}
}

// AddRule installs parameters under tagPrefix. Longer-prefix rules take
// precedence over shorter ones for any tag that matches both. AddRule
// never fails; it overwrites any rule already installed at the same
// prefix.
func (th *Throttle) AddRule(tagPrefix string, p Parameters) {
	th.rules.Insert(tagPrefix, p)
}

// Whitelist installs a rule under tagPrefix that always admits and never
// touches a usage record.
func (th *Throttle) Whitelist(tagPrefix string) {
	th.rules.Insert(tagPrefix, Parameters{Whitelisted: true})
}

// CheckRequest decides whether a request tagged tag at time t may
// proceed. Whitelisted tags are never recorded. Fresh tags get a record
// seeded with a full bucket at the matched rule's burst.
func (th *Throttle) CheckRequest(tag string, t float64) bool {
	p := th.paramsFor(tag)
	if p.Whitelisted {
		return true
	}
	return th.recordFor(tag, p).CheckRequest(p.Burst, p.Rate, t)
}

// ReceiveReport ingests a peer's report: a map from tag to hits the peer
// admitted since its last report. Each entry debits the local record for
// that tag by the reported count, without refilling first (spec.md §9).
// t is accepted for interface symmetry with MakeReport but, per spec,
// plays no role here - ingestion only debits.
//
// Unlike CheckRequest, this does not special-case whitelisted tags - the
// original's external_hit has no such check either (throttle.cpp), so a
// misbehaving peer reporting hits under a whitelisted prefix will create
// a zero-capacity record here exactly as it would have in the source.
func (th *Throttle) ReceiveReport(hits map[string]int, t float64) {
	for tag, count := range hits {
		if count <= 0 {
			continue
		}
		p := th.paramsFor(tag)
		th.recordFor(tag, p).RecordExternal(count)
	}
}

// MakeReport advances time to t for every tracked tag, returning a map of
// tag -> hits admitted locally since the previous MakeReport call. Tags
// whose bucket has refilled all the way to capacity are dropped from the
// map entirely: a full bucket carries no information, and recreating it
// later reproduces the same state, so this bounds memory under tag
// churn.
//
// Grounded on throttle.cpp's Throttle::make_report, including its
// "erase while iterating" shape - Go's range-over-map tolerates deleting
// the current key mid-iteration, so the two-pass key-collection dance the
// original's C++ needs is unnecessary here.
func (th *Throttle) MakeReport(t float64) map[string]int {
	report := make(map[string]int)
	for tag, record := range th.records {
		if hits := record.TakeUnreportedHits(); hits > 0 {
			report[tag] = hits
		}
		p := th.paramsFor(tag)
		if record.Refill(p.Burst, p.Rate, t) >= float64(p.Burst) {
			delete(th.records, tag)
		}
	}
	return report
}

// DumpState writes a snapshot of every tracked record for debugging,
// following the shape of throttle.cpp's dump_state (there, to an
// ostream; here, as a plain map since callers format it themselves, e.g.
// the admin HTTP surface renders it as JSON).
func (th *Throttle) DumpState() map[string]UsageSnapshot {
	snapshot := make(map[string]UsageSnapshot, len(th.records))
	for tag, record := range th.records {
		snapshot[tag] = UsageSnapshot{
			Tokens:         record.Tokens(),
			LastUpdate:     record.LastUpdate(),
			UnreportedHits: record.unreportedHits,
		}
	}
	return snapshot
}

// UsageSnapshot is a read-only view of a UsageRecord for diagnostics.
type UsageSnapshot struct {
	Tokens         float64
	LastUpdate     float64
	UnreportedHits int
}

func (th *Throttle) paramsFor(tag string) Parameters {
	p, _ := th.rules.Lookup(tag) // total: the root always carries a value
	return p
}

func (th *Throttle) recordFor(tag string, p Parameters) *UsageRecord {
	if r, ok := th.records[tag]; ok {
		return r
	}
	r := NewUsageRecord(p.Burst)
	th.records[tag] = r
	return r
}
