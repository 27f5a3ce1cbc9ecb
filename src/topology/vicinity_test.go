package topology

import (
	"testing"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVicinity(t *testing.T, capacity, subset int, topics ...profile.Topic) (*Vicinity, Env) {
	conf := config.NewTestConfig(t)
	conf.ProximityCapacity = capacity
	conf.ProximitySubset = subset
	conf.StaleAge = 0
	env := testEnv(t, conf, profile.NewProfile("self", "addr-self", topics...))
	return buildModule(t, NewVicinity, env).(*Vicinity), env
}

func TestVicinityKeepsCloserNode(t *testing.T) {
	x := profile.NewProfile("x", "addr-x", "A", "B")
	y := profile.NewProfile("y", "addr-y", "A")

	for _, order := range [][]profile.Profile{{x, y}, {y, x}} {
		v, env := newTestVicinity(t, 1, 1, "A", "B", "C")
		seed(env, x, y)

		v.MergeIncoming("", order)
		assert.Equal(t, []profile.ID{"x"}, v.View())
	}

	// one at a time
	v, env := newTestVicinity(t, 1, 1, "A", "B", "C")
	seed(env, x, y)
	v.MergeIncoming("", []profile.Profile{x})
	v.MergeIncoming("", []profile.Profile{y})
	assert.Equal(t, []profile.ID{"x"}, v.View())
}

func TestVicinitySelectsClosest(t *testing.T) {
	v, env := newTestVicinity(t, 5, 3, "A", "B", "C")

	ps := seed(env,
		profile.NewProfile("a", "", "A"),
		profile.NewProfile("b", "", "A", "B"),
		profile.NewProfile("c", "", "A", "B", "C"),
		profile.NewProfile("d", "", "D"),
	)
	v.MergeIncoming("", ps)

	assert.Equal(t, 3, v.Score("c"))
	assert.Equal(t, 0, v.Score("d"))
	assert.Equal(t, []profile.ID{"c"}, v.SelectTargets())

	out := v.BuildOutgoing("c")
	require.Len(t, out, 3)
	assert.Equal(t, env.Self.ID, out[0].ID)
	assert.Equal(t, profile.ID("b"), out[1].ID)
	assert.Equal(t, profile.ID("a"), out[2].ID)
}

func TestVicinityEvictionTieBreak(t *testing.T) {
	v, env := newTestVicinity(t, 2, 1, "A")

	ps := seed(env,
		profile.NewProfile("a", "", "A"),
		profile.NewProfile("b", "", "A"),
		profile.NewProfile("c", "", "A"),
	)

	v.MergeIncoming("", ps[:1])
	v.SelectTargets()
	v.MergeIncoming("", ps[1:])

	// equal scores: the older entry goes first
	assert.Equal(t, []profile.ID{"b", "c"}, v.View())

	v.MergeIncoming("", []profile.Profile{profile.NewProfile("a", "", "A")})
	// then the greater identifier
	assert.Equal(t, []profile.ID{"a", "b"}, v.View())
}

func TestVicinityFollowsTopicChanges(t *testing.T) {
	v, env := newTestVicinity(t, 1, 1, "A", "B")

	ps := seed(env,
		profile.NewProfile("x", "", "A"),
		profile.NewProfile("y", "", "B"),
	)
	v.MergeIncoming("", ps)
	// equal scores and ages: the greater identifier is evicted
	require.Equal(t, []profile.ID{"x"}, v.View())

	// x leaves A, y joins A
	env.Store.Upsert(profile.NewProfile("x", "", "C"))
	env.Store.Upsert(profile.NewProfile("y", "", "A", "B"))
	v.MergeIncoming("", []profile.Profile{profile.NewProfile("y", "", "A", "B")})

	assert.Equal(t, []profile.ID{"y"}, v.View())
}

func TestVicinityMergeIdempotent(t *testing.T) {
	v, env := newTestVicinity(t, 3, 2, "A", "B", "C")

	ps := seed(env,
		profile.NewProfile("a", "", "A"),
		profile.NewProfile("b", "", "B"),
		profile.NewProfile("c", "", "A", "B"),
		profile.NewProfile("d", "", "C"),
		profile.NewProfile("e", "", "A", "C"),
	)

	v.MergeIncoming("", ps[:2])
	v.SelectTargets()
	v.MergeIncoming("", ps[2:])
	once := v.View()
	v.MergeIncoming("", ps[2:])

	assert.Equal(t, once, v.View())
	assert.LessOrEqual(t, len(once), 3)
	assert.NotContains(t, once, env.Self.ID)
}
