package profile

import (
	"sort"
	"strings"
)

// ID is the opaque, stable identifier of a node.
type ID string

// Topic identifies a publish/subscribe topic.
type Topic string

// Topics is a set of topics, kept sorted and without duplicates.
type Topics []Topic

// NewTopics returns the sorted, de-duplicated set of the given topics. Empty
// topic names are dropped.
func NewTopics(topics ...Topic) Topics {
	res := make(Topics, 0, len(topics))
	for _, t := range topics {
		if t != "" {
			res = append(res, t)
		}
	}

	sort.Sort(res)

	// compact in place
	out := res[:0]
	for i, t := range res {
		if i == 0 || t != res[i-1] {
			out = append(out, t)
		}
	}

	return out
}

// ParseTopics splits a comma separated list of topic names.
func ParseTopics(s string) Topics {
	var topics []Topic
	for _, t := range strings.Split(s, ",") {
		topics = append(topics, Topic(strings.TrimSpace(t)))
	}
	return NewTopics(topics...)
}

func (ts Topics) Len() int           { return len(ts) }
func (ts Topics) Swap(i, j int)      { ts[i], ts[j] = ts[j], ts[i] }
func (ts Topics) Less(i, j int) bool { return ts[i] < ts[j] }

// Contains reports whether t is in the set.
func (ts Topics) Contains(t Topic) bool {
	i := sort.Search(len(ts), func(i int) bool { return ts[i] >= t })
	return i < len(ts) && ts[i] == t
}

// Common returns the topics present in both sets.
func (ts Topics) Common(other Topics) Topics {
	res := Topics{}
	i, j := 0, 0
	for i < len(ts) && j < len(other) {
		switch {
		case ts[i] == other[j]:
			res = append(res, ts[i])
			i++
			j++
		case ts[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return res
}

// Intersect returns the number of topics present in both sets. It is the
// proximity score between two nodes.
func (ts Topics) Intersect(other Topics) int {
	return len(ts.Common(other))
}

// Equal reports whether both sets hold the same topics.
func (ts Topics) Equal(other Topics) bool {
	if len(ts) != len(other) {
		return false
	}
	for i := range ts {
		if ts[i] != other[i] {
			return false
		}
	}
	return true
}

// Profile is what is known about a node.
type Profile struct {
	ID      ID     `codec:"id" json:"id"`
	Address string `codec:"addr" json:"addr"`
	Topics  Topics `codec:"topics" json:"topics"`
}

// NewProfile ...
func NewProfile(id ID, address string, topics ...Topic) Profile {
	return Profile{
		ID:      id,
		Address: address,
		Topics:  NewTopics(topics...),
	}
}

// Proximity is the closeness score of other as seen from p: the number of
// topics they have in common.
func (p Profile) Proximity(other Profile) int {
	return p.Topics.Intersect(other.Topics)
}

// Peer is the (identifier, address) pair exposed to the connection manager.
type Peer struct {
	ID      ID     `json:"id"`
	Address string `json:"addr"`
}

// Peer returns the connection handle of the profile.
func (p Profile) Peer() Peer {
	return Peer{ID: p.ID, Address: p.Address}
}

// ByID implements sort.Interface for Profiles based on the ID field.
type ByID []Profile

func (a ByID) Len() int           { return len(a) }
func (a ByID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByID) Less(i, j int) bool { return a[i].ID < a[j].ID }

// ExcludeProfile is used to exclude a single node from a list of profiles.
func ExcludeProfile(profiles []Profile, id ID) (int, []Profile) {
	index := -1
	others := make([]Profile, 0, len(profiles))
	for i, p := range profiles {
		if p.ID != id {
			others = append(others, p)
		} else {
			index = i
		}
	}
	return index, others
}
