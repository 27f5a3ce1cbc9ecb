package profile

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const jsonProfilesPath = "profiles.json"

// JSONProfiles is used to provide seed profiles on disk in the form of a JSON
// file. This allows human operators to manipulate the file.
type JSONProfiles struct {
	l    sync.Mutex
	path string
}

// NewJSONProfiles creates a new JSONProfiles store rooted in base.
func NewJSONProfiles(base string) *JSONProfiles {
	return &JSONProfiles{
		path: filepath.Join(base, jsonProfilesPath),
	}
}

// Profiles reads the profiles from the file.
func (j *JSONProfiles) Profiles() ([]Profile, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	// Check for no profiles
	if len(buf) == 0 {
		return nil, nil
	}

	var profiles []Profile
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&profiles); err != nil {
		return nil, err
	}

	for i := range profiles {
		profiles[i].Topics = NewTopics(profiles[i].Topics...)
	}

	return profiles, nil
}

// SetProfiles writes the profiles to the file.
func (j *JSONProfiles) SetProfiles(profiles []Profile) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(profiles); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf.Bytes(), 0644)
}
