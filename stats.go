package usbreplay

import "sync/atomic"

// Stats tracks replay activity for observability.
type Stats struct {
	Submitted    atomic.Uint64
	Reaped       atomic.Uint64
	Discarded    atomic.Uint64
	MatchHits    atomic.Uint64
	MatchMisses  atomic.Uint64
	StuckReports atomic.Uint64
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats {
	return &Stats{}
}

// StatsSnapshot is a point-in-time copy of Stats' counters.
type StatsSnapshot struct {
	Submitted    uint64
	Reaped       uint64
	Discarded    uint64
	MatchHits    uint64
	MatchMisses  uint64
	StuckReports uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Submitted:    s.Submitted.Load(),
		Reaped:       s.Reaped.Load(),
		Discarded:    s.Discarded.Load(),
		MatchHits:    s.MatchHits.Load(),
		MatchMisses:  s.MatchMisses.Load(),
		StuckReports: s.StuckReports.Load(),
	}
}

// statsObserver adapts a *Stats into interfaces.Observer, the shape the
// matcher reports stuck events through.
type statsObserver struct {
	stats *Stats
}

func (o statsObserver) ObserveStuck() { o.stats.StuckReports.Add(1) }
