package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keyManifest   = []byte("manifest")
)

func offsetKey(i int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(i)) // #nosec G115 -- offsets are non-negative
	return k[:]
}

func writeMetadata(path string, manifest Manifest, records []Record) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		rb, err := tx.CreateBucketIfNotExists(bucketRecords)
		if err != nil {
			return err
		}
		for i, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := rb.Put(offsetKey(i), data); err != nil {
				return err
			}
		}

		mb, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		data, err := json.Marshal(manifest)
		if err != nil {
			return err
		}
		return mb.Put(keyManifest, data)
	})
}

func readMetadata(path string) (Manifest, []Record, error) {
	var manifest Manifest
	var records []Record

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return manifest, nil, err
	}
	defer db.Close()

	err = db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		if mb == nil {
			return fmt.Errorf("metadata: missing %s bucket", bucketMeta)
		}
		if err := json.Unmarshal(mb.Get(keyManifest), &manifest); err != nil {
			return fmt.Errorf("metadata: manifest: %w", err)
		}

		rb := tx.Bucket(bucketRecords)
		if rb == nil {
			return fmt.Errorf("metadata: missing %s bucket", bucketRecords)
		}
		records = make([]Record, 0, manifest.Count)
		// Big-endian keys iterate in offset order.
		return rb.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return manifest, records, err
}
