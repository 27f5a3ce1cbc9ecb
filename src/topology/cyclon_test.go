package topology

import (
	"testing"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCyclon(t *testing.T, capacity, subset int) (*Cyclon, Env) {
	conf := config.NewTestConfig(t)
	conf.MembershipCapacity = capacity
	conf.MembershipSubset = subset
	conf.StaleAge = 0
	env := testEnv(t, conf, profile.NewProfile("self", "addr-self", "a"))
	return buildModule(t, NewCyclon, env).(*Cyclon), env
}

func TestCyclonSelectsOldest(t *testing.T) {
	c, env := newTestCyclon(t, 5, 2)

	assert.Empty(t, c.SelectTargets(), "empty view has no target")

	ps := seed(env, nodeProfiles(3)...)
	c.MergeIncoming("", ps[:1])
	c.SelectTargets()
	c.MergeIncoming("", ps[1:])

	// node00 has been in the view one round longer
	assert.Equal(t, []profile.ID{"node00"}, c.SelectTargets())

	age, ok := c.Age("node00")
	require.True(t, ok)
	assert.Equal(t, 2, age)

	// ties are broken by identifier
	c.Remove("node00")
	assert.Equal(t, []profile.ID{"node01"}, c.SelectTargets())
}

func TestCyclonCapacityAndSelf(t *testing.T) {
	c, env := newTestCyclon(t, 4, 2)

	ps := seed(env, nodeProfiles(10)...)
	c.MergeIncoming("", append(ps, env.Self))

	view := c.View()
	assert.Len(t, view, 4)
	assert.NotContains(t, view, env.Self.ID)
}

func TestCyclonOutgoing(t *testing.T) {
	c, env := newTestCyclon(t, 10, 3)

	ps := seed(env, nodeProfiles(5)...)
	c.MergeIncoming("", ps)

	out := c.BuildOutgoing("node00")
	require.Len(t, out, 3)
	assert.Equal(t, env.Self.ID, out[0].ID, "own profile goes first")
	for _, p := range out[1:] {
		assert.NotEqual(t, profile.ID("node00"), p.ID, "target is not sent to itself")
	}
}

func TestCyclonSwap(t *testing.T) {
	c, env := newTestCyclon(t, 3, 3)

	ps := seed(env, nodeProfiles(6)...)
	c.MergeIncoming("", ps[:3])

	target := c.SelectTargets()[0]
	require.Equal(t, profile.ID("node00"), target)
	out := c.BuildOutgoing(target)
	require.Len(t, out, 3)
	assert.NotContains(t, c.View(), target, "target leaves the view for the exchange")

	// the target answers with itself and two new nodes
	reply := []profile.Profile{ps[0], ps[3], ps[4]}
	c.MergeIncoming(target, reply)

	view := c.View()
	assert.Len(t, view, 3)
	assert.Contains(t, view, profile.ID("node00"), "target freshly received is kept")
	assert.Contains(t, view, profile.ID("node03"))
	assert.Contains(t, view, profile.ID("node04"))

	age, _ := c.Age("node00")
	assert.Equal(t, 0, age)
}

func TestCyclonFailedTargetNotRetried(t *testing.T) {
	c, env := newTestCyclon(t, 3, 2)

	ps := seed(env, nodeProfiles(2)...)
	c.MergeIncoming("", ps)

	target := c.SelectTargets()[0]
	require.Equal(t, profile.ID("node00"), target)
	c.BuildOutgoing(target)
	c.Abandon(target)

	assert.Equal(t, []profile.ID{"node01"}, c.View())

	// the next round contacts somebody else
	assert.Equal(t, []profile.ID{"node01"}, c.SelectTargets())
}

func TestCyclonAgeResetOnReceipt(t *testing.T) {
	c, env := newTestCyclon(t, 3, 2)

	ps := seed(env, nodeProfiles(2)...)
	c.MergeIncoming("", ps[:1])
	c.SelectTargets()
	c.SelectTargets()

	age, _ := c.Age("node00")
	require.Equal(t, 2, age)

	c.MergeIncoming("", ps)

	age, ok := c.Age("node00")
	require.True(t, ok)
	assert.Equal(t, 0, age, "receiving a known entry again resets its age")
	assert.Len(t, c.View(), 2)
}

func TestCyclonStaleEviction(t *testing.T) {
	c, env := newTestCyclon(t, 3, 2)
	c.staleAge = 2

	ps := seed(env, nodeProfiles(1)...)
	c.MergeIncoming("", ps)

	c.SelectTargets()
	c.SelectTargets()
	assert.Len(t, c.View(), 1)
	assert.Empty(t, c.SelectTargets())
	assert.Empty(t, c.View())
}

func TestCyclonMergeIdempotent(t *testing.T) {
	c, env := newTestCyclon(t, 4, 2)

	ps := seed(env, nodeProfiles(8)...)
	c.MergeIncoming("", ps[:3])
	c.SelectTargets()

	c.MergeIncoming("", ps[2:6])
	once := c.View()
	c.MergeIncoming("", ps[2:6])

	assert.Equal(t, once, c.View())
	assert.Len(t, once, 4)
}
