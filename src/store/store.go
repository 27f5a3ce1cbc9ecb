package store

import (
	"github.com/mosaicnetworks/poldercast/src/profile"
)

// ProfileStore saves and restores snapshots of known profiles.
type ProfileStore interface {
	// SaveProfiles replaces the stored snapshot with profiles.
	SaveProfiles(profiles []profile.Profile) error
	// LoadProfiles returns the last saved snapshot, sorted by identifier.
	LoadProfiles() ([]profile.Profile, error)
	Close() error
}
