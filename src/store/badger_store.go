package store

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/gossip"
	"github.com/mosaicnetworks/poldercast/src/profile"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const profilePrefix = "profile"

// BadgerStore writes snapshots to a badger database. Every profile is stored
// under its own key; a snapshot replaces the whole prefix in one transaction.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger *logrus.Entry
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, common.WrapErr(path, common.Storage, err)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, common.WrapErr(path, common.Storage, err)
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &BadgerStore{
		db:     handle,
		path:   path,
		logger: logger,
	}, nil
}

func profileKey(id profile.ID) []byte {
	return []byte(fmt.Sprintf("%s_%s", profilePrefix, id))
}

// SaveProfiles implements ProfileStore.
func (s *BadgerStore) SaveProfiles(profiles []profile.Profile) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		stale := s.keys(txn)

		for _, p := range profiles {
			key := profileKey(p.ID)
			delete(stale, string(key))

			val, err := encodeProfile(p)
			if err != nil {
				return err
			}

			//insert [profile_id] => [profile bytes]
			if err := txn.Set(key, val); err != nil {
				return err
			}
		}

		for k := range stale {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return common.WrapErr("SaveProfiles", common.Storage, err)
	}

	s.logger.WithField("profiles", len(profiles)).Debug("SaveProfiles")

	return nil
}

// LoadProfiles implements ProfileStore. Keys are iterated in byte order, which
// is identifier order.
func (s *BadgerStore) LoadProfiles() ([]profile.Profile, error) {
	res := []profile.Profile{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(profilePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(data []byte) error {
				p, err := decodeProfile(data)
				if err != nil {
					return err
				}
				res = append(res, p)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, common.WrapErr("LoadProfiles", common.Storage, err)
	}

	return res, nil
}

// Close implements ProfileStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the directory of the database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

func (s *BadgerStore) keys(txn *badger.Txn) map[string]bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	res := make(map[string]bool)
	prefix := []byte(profilePrefix + "_")
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		res[string(it.Item().KeyCopy(nil))] = true
	}

	return res
}

func encodeProfile(p profile.Profile) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := codec.NewEncoder(b, gossip.MsgpackHandle()).Encode(p); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeProfile(data []byte) (profile.Profile, error) {
	var p profile.Profile
	err := codec.NewDecoder(bytes.NewReader(data), gossip.MsgpackHandle()).Decode(&p)
	return p, err
}
