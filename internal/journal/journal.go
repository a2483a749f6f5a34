// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package journal keeps a history of conversion runs per volume.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var runsBucket = []byte("runs")

// Record describes a single conversion run.
type Record struct {
	Time         time.Time `json:"time"`
	Direction    string    `json:"direction"`
	Decision     string    `json:"decision"`
	Error        string    `json:"error,omitempty"`
	LengthBefore uint64    `json:"length_before"`
	LengthAfter  uint64    `json:"length_after"`
	VolumeSize   uint64    `json:"volume_size"`

	// Sequence is assigned by Append.
	Sequence uint64 `json:"-"`
}

// Journal is a bbolt database of run records.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)

		return err
	}); err != nil {
		db.Close() //nolint:errcheck

		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records a run of volume and returns its sequence number.
func (j *Journal) Append(volume uuid.UUID, rec Record) (uint64, error) {
	var seq uint64

	err := j.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket(runsBucket).CreateBucketIfNotExists(volume[:])
		if err != nil {
			return err
		}

		seq, err = bucket.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return bucket.Put(binary.BigEndian.AppendUint64(nil, seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append journal record: %w", err)
	}

	return seq, nil
}

// List returns the runs of volume, oldest first.
func (j *Journal) List(volume uuid.UUID) ([]Record, error) {
	var records []Record

	err := j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(runsBucket).Bucket(volume[:])
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var rec Record

			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupted record %x: %w", k, err)
			}

			rec.Sequence = binary.BigEndian.Uint64(k)

			records = append(records, rec)

			return nil
		})
	})

	return records, err
}

// Last returns the most recent run of volume.
func (j *Journal) Last(volume uuid.UUID) (*Record, error) {
	var rec *Record

	err := j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(runsBucket).Bucket(volume[:])
		if bucket == nil {
			return nil
		}

		k, v := bucket.Cursor().Last()
		if k == nil {
			return nil
		}

		rec = &Record{}

		if err := json.Unmarshal(v, rec); err != nil {
			return err
		}

		rec.Sequence = binary.BigEndian.Uint64(k)

		return nil
	})

	return rec, err
}
