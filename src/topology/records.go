package topology

import (
	"time"

	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/mosaicnetworks/poldercast/src/telemetry"
	"github.com/sirupsen/logrus"
)

// strike gives a strike to id and applies the decision of the policy. It
// returns true when id is in quarantine afterwards.
func (m *Manager) strike(id profile.ID, reason StrikeReason) bool {
	if m.policy == nil || id == "" {
		return false
	}

	telemetry.StrikesTotal.WithLabelValues(reason.String()).Inc()

	now := m.clock.Now()

	// never held together with a slot lock
	m.recordLock.Lock()
	r, ok := m.records[id]
	if !ok {
		r = &Record{LastUpdate: now}
		m.records[id] = r
	}
	r.Strike(reason, now)
	report := m.apply(id, r, now)
	quarantined := r.Quarantined()
	m.recordLock.Unlock()

	m.logger.WithFields(logrus.Fields{
		"node":   id,
		"reason": reason,
		"report": report,
	}).Debug("Strike")

	if report == Quarantine {
		m.Evict(id)
	}

	return quarantined
}

// quarantined reports whether id is in quarantine. A quarantined node that
// is heard of has its record updated, which lets the policy lift the
// quarantine later instead of forgetting the node.
func (m *Manager) quarantined(id profile.ID) bool {
	if m.policy == nil {
		return false
	}

	m.recordLock.Lock()
	defer m.recordLock.Unlock()

	r, ok := m.records[id]
	if !ok {
		return false
	}
	r.LastUpdate = m.clock.Now()
	return r.Quarantined()
}

// review runs the policy over every record, so that quarantines end.
func (m *Manager) review() {
	if m.policy == nil {
		return
	}

	now := m.clock.Now()
	var evict []profile.ID

	m.recordLock.Lock()
	for id, r := range m.records {
		report := m.apply(id, r, now)
		if report == Keep {
			continue
		}
		m.logger.WithFields(logrus.Fields{
			"node":   id,
			"report": report,
		}).Debug("Policy")
		if report == Quarantine {
			evict = append(evict, id)
		}
	}
	m.recordLock.Unlock()

	for _, id := range evict {
		m.Evict(id)
	}
}

// apply asks the policy about r and updates the records accordingly. It is
// called with the record lock held.
func (m *Manager) apply(id profile.ID, r *Record, now time.Time) PolicyReport {
	report := m.policy.Check(r, now)

	switch report {
	case Quarantine:
		r.QuarantinedAt = now
	case LiftQuarantine:
		r.QuarantinedAt = time.Time{}
	case Forget:
		delete(m.records, id)
	}

	n := 0
	for _, r := range m.records {
		if r.Quarantined() {
			n++
		}
	}
	telemetry.QuarantinedNodes.Set(float64(n))

	return report
}

// Record returns a copy of the record of id.
func (m *Manager) Record(id profile.ID) (Record, bool) {
	m.recordLock.Lock()
	defer m.recordLock.Unlock()

	r, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	res := *r
	res.Strikes = append([]Strike{}, r.Strikes...)
	return res, true
}

// Quarantined returns the nodes in quarantine, sorted.
func (m *Manager) Quarantined() []profile.ID {
	m.recordLock.Lock()
	defer m.recordLock.Unlock()

	res := []profile.ID{}
	for id, r := range m.records {
		if r.Quarantined() {
			res = append(res, id)
		}
	}
	return sortIDs(res)
}
