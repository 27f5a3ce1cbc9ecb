package topology

import (
	"time"
)

// StrikeReason is why a node was given a strike.
type StrikeReason int

const (
	// CannotConnect is given when an exchange with the node failed.
	CannotConnect StrikeReason = iota
	// InvalidData is given when the node sent malformed candidates.
	InvalidData
)

func (r StrikeReason) String() string {
	switch r {
	case CannotConnect:
		return "CannotConnect"
	case InvalidData:
		return "InvalidData"
	default:
		return "Unknown"
	}
}

// Strike is a single misbehaviour of a node.
type Strike struct {
	When   time.Time    `json:"when"`
	Reason StrikeReason `json:"reason"`
}

// Record is the conduct of a remote node as seen by the local one.
type Record struct {
	// LifetimeStrikes is never reset. It lengthens every new quarantine.
	LifetimeStrikes int      `json:"lifetime_strikes"`
	Strikes         []Strike `json:"strikes"`

	// QuarantinedAt is zero when the node is not in quarantine.
	QuarantinedAt time.Time `json:"quarantined_at"`

	// LastUpdate is the last time the node, or somebody gossiping about it,
	// was heard of.
	LastUpdate time.Time `json:"last_update"`
}

// Strike adds a strike to the record.
func (r *Record) Strike(reason StrikeReason, now time.Time) {
	r.LifetimeStrikes++
	r.Strikes = append(r.Strikes, Strike{When: now, Reason: reason})
}

// Clear reports whether the record holds no strike.
func (r *Record) Clear() bool {
	return len(r.Strikes) == 0
}

// CleanSlate forgets the current strikes. LifetimeStrikes is kept.
func (r *Record) CleanSlate() {
	r.Strikes = nil
}

// Quarantined reports whether the node is in quarantine.
func (r *Record) Quarantined() bool {
	return !r.QuarantinedAt.IsZero()
}

// PolicyReport is the decision of a Policy about a node.
type PolicyReport int

const (
	// Keep leaves the node where it is.
	Keep PolicyReport = iota
	// Quarantine takes the node out of every module until the quarantine is
	// lifted.
	Quarantine
	// LiftQuarantine makes the node eligible again.
	LiftQuarantine
	// Forget drops the record of a quarantined node which was not heard of
	// during its quarantine.
	Forget
)

func (p PolicyReport) String() string {
	switch p {
	case Keep:
		return "Keep"
	case Quarantine:
		return "Quarantine"
	case LiftQuarantine:
		return "LiftQuarantine"
	case Forget:
		return "Forget"
	default:
		return "Unknown"
	}
}

// Policy decides what happens to a node given its record. Check may modify
// the record.
type Policy interface {
	Check(r *Record, now time.Time) PolicyReport
}

// DefaultPolicy quarantines a node on its first strike. The quarantine lasts
// QuarantineDuration times the lifetime strikes of the node. At the end of
// it, the quarantine is lifted if the node was heard of in the meantime, and
// the node is forgotten otherwise.
type DefaultPolicy struct {
	QuarantineDuration time.Duration
}

// Check implements the Policy interface.
func (p DefaultPolicy) Check(r *Record, now time.Time) PolicyReport {
	if !r.Quarantined() {
		if r.Clear() {
			return Keep
		}
		return Quarantine
	}

	d := p.QuarantineDuration * time.Duration(r.LifetimeStrikes)

	switch {
	case now.Sub(r.QuarantinedAt) < d:
		return Keep
	case now.Sub(r.LastUpdate) < d:
		r.CleanSlate()
		return LiftQuarantine
	default:
		return Forget
	}
}
