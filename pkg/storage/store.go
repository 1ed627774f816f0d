package storage

import (
	"github.com/cortexops/gateway/pkg/auth"
	"github.com/cortexops/gateway/pkg/types"
)

// Store defines the interface for durable gateway state.
// Implemented by the BoltDB-backed store.
type Store interface {
	// Service instance mirror
	SaveInstance(inst *types.ServiceInstance) error
	GetInstance(key string) (*types.ServiceInstance, error)
	ListInstances() ([]*types.ServiceInstance, error)
	DeleteInstance(key string) error

	// API keys
	SaveAPIKey(key *auth.APIKey) error
	ListAPIKeys() ([]*auth.APIKey, error)
	DeleteAPIKey(keyID string) error

	// Utility
	Close() error
}
