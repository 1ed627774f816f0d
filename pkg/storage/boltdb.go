package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cortexops/gateway/pkg/auth"
	"github.com/cortexops/gateway/pkg/types"
)

var (
	// Bucket names
	bucketInstances = []byte("instances")
	bucketAPIKeys   = []byte("api_keys")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "gateway.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketInstances,
			bucketAPIKeys,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Service instance operations

func (s *BoltStore) SaveInstance(inst *types.ServiceInstance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data, err := json.Marshal(inst)
		if err != nil {
			return err
		}
		return b.Put([]byte(inst.Key()), data)
	})
}

func (s *BoltStore) GetInstance(key string) (*types.ServiceInstance, error) {
	var inst types.ServiceInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("instance not found: %s", key)
		}
		return json.Unmarshal(data, &inst)
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *BoltStore) ListInstances() ([]*types.ServiceInstance, error) {
	var instances []*types.ServiceInstance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.ForEach(func(k, v []byte) error {
			var inst types.ServiceInstance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			instances = append(instances, &inst)
			return nil
		})
	})
	return instances, err
}

func (s *BoltStore) DeleteInstance(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.Delete([]byte(key))
	})
}

// API key operations

func (s *BoltStore) SaveAPIKey(key *auth.APIKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		data, err := json.Marshal(key)
		if err != nil {
			return err
		}
		return b.Put([]byte(key.KeyID), data)
	})
}

func (s *BoltStore) ListAPIKeys() ([]*auth.APIKey, error) {
	var keys []*auth.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		return b.ForEach(func(k, v []byte) error {
			var key auth.APIKey
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			keys = append(keys, &key)
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) DeleteAPIKey(keyID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		return b.Delete([]byte(keyID))
	})
}
