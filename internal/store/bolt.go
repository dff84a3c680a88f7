package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"gree-ir-home/internal/transmit"
)

var (
	bucketSessions = []byte("sessions")
	bucketHistory  = []byte("history")
)

// historyKeep bounds the per-unit command history.
const historyKeep = 200

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSessions, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) GetSession(host string) (*transmit.Session, error) {
	var sess *transmit.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		data := b.Get([]byte(host))
		if data == nil {
			return nil // no cached session
		}
		sess = &transmit.Session{}
		return json.Unmarshal(data, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *BoltStore) PutSession(host string, sess *transmit.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return b.Put([]byte(host), data)
	})
}

func (s *BoltStore) DeleteSession(host string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketSessions)
		}
		return b.Delete([]byte(host))
	})
}

func (s *BoltStore) AppendCommand(unit string, rec *CommandRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketHistory)
		if parent == nil {
			return fmt.Errorf("bucket %q not found", bucketHistory)
		}
		b, err := parent.CreateBucketIfNotExists([]byte(unit))
		if err != nil {
			return err
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}

		// Prune oldest entries beyond the retention bound.
		count := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		if count > historyKeep {
			var doomed [][]byte
			for k, _ := c.First(); k != nil && len(doomed) < count-historyKeep; k, _ = c.Next() {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			for _, k := range doomed {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *BoltStore) ListCommands(unit string, limit int) ([]*CommandRecord, error) {
	var recs []*CommandRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		parent := tx.Bucket(bucketHistory)
		if parent == nil {
			return nil
		}
		b := parent.Bucket([]byte(unit))
		if b == nil {
			return nil // no history yet
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(recs) >= limit {
				break
			}
			var rec CommandRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	return recs, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
