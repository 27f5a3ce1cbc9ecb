package gossip

import (
	"sort"

	"github.com/mosaicnetworks/poldercast/src/profile"
)

// Envelope is the unit of exchange between two nodes.
type Envelope struct {
	Sender profile.Profile              `codec:"sender" json:"sender"`
	Lists  map[string][]profile.Profile `codec:"lists" json:"lists"`
}

// NewEnvelope creates an empty Envelope sent by sender.
func NewEnvelope(sender profile.Profile) *Envelope {
	return &Envelope{
		Sender: sender,
		Lists:  make(map[string][]profile.Profile),
	}
}

// Add appends candidates to the list of the named module.
func (e *Envelope) Add(module string, candidates ...profile.Profile) {
	if e.Lists == nil {
		e.Lists = make(map[string][]profile.Profile)
	}
	e.Lists[module] = append(e.Lists[module], candidates...)
}

// List returns the candidate list addressed to the named module, and whether
// such a list is present.
func (e *Envelope) List(module string) ([]profile.Profile, bool) {
	l, ok := e.Lists[module]
	return l, ok
}

// Modules returns the names of the modules the envelope carries a list for,
// in lexicographic order.
func (e *Envelope) Modules() []string {
	res := make([]string, 0, len(e.Lists))
	for m := range e.Lists {
		res = append(res, m)
	}
	sort.Strings(res)
	return res
}

// Len returns the total number of candidates carried by the envelope.
func (e *Envelope) Len() int {
	n := 0
	for _, l := range e.Lists {
		n += len(l)
	}
	return n
}
