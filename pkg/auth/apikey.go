package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/rbac"
)

// APIKey is an external caller credential
type APIKey struct {
	KeyID       string    `json:"key_id"`
	Secret      string    `json:"secret"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions,omitempty"`
	RateLimit   int       `json:"rate_limit"` // requests per hour
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used,omitempty"`
	UsageCount  int64     `json:"usage_count"`
}

// HasPermission reports whether the key grants the required permission,
// honouring "prefix:*" wildcards.
func (k *APIKey) HasPermission(required string) bool {
	for _, p := range k.Permissions {
		if rbac.Match(p, required) {
			return true
		}
	}
	return false
}

// KeyStore persists API keys across restarts
type KeyStore interface {
	SaveAPIKey(key *APIKey) error
	ListAPIKeys() ([]*APIKey, error)
	DeleteAPIKey(keyID string) error
}

// APIKeyManager owns API keys and their rate-limit budgets. A nil store
// keeps keys in memory only.
type APIKeyManager struct {
	mu      sync.Mutex
	keys    map[string]*APIKey
	limiter *HourlyLimiter
	store   KeyStore
}

// NewAPIKeyManager creates a manager, loading persisted keys when a store
// is provided.
func NewAPIKeyManager(store KeyStore) (*APIKeyManager, error) {
	m := &APIKeyManager{
		keys:    make(map[string]*APIKey),
		limiter: NewHourlyLimiter(),
		store:   store,
	}
	if store != nil {
		keys, err := store.ListAPIKeys()
		if err != nil {
			return nil, fmt.Errorf("failed to load api keys: %w", err)
		}
		for _, k := range keys {
			m.keys[k.KeyID] = k
		}
		log.WithComponent("auth").Info().Int("count", len(keys)).Msg("api keys loaded")
	}
	return m, nil
}

// CreateKey generates and stores a new API key. The key id is "ak_" plus
// 128 random bits; the secret is 256 random bits, both base64url.
func (m *APIKeyManager) CreateKey(name string, permissions []string, rateLimit int, expiresAt time.Time) (*APIKey, error) {
	if rateLimit <= 0 {
		rateLimit = 1000
	}

	keyID, err := randomToken(16)
	if err != nil {
		return nil, err
	}
	secret, err := randomToken(32)
	if err != nil {
		return nil, err
	}

	key := &APIKey{
		KeyID:       "ak_" + keyID,
		Secret:      secret,
		Name:        name,
		Permissions: permissions,
		RateLimit:   rateLimit,
		ExpiresAt:   expiresAt,
		Active:      true,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.keys[key.KeyID] = key
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveAPIKey(key); err != nil {
			return nil, fmt.Errorf("failed to persist api key: %w", err)
		}
	}

	log.WithComponent("auth").Info().Str("key_id", key.KeyID).Str("name", name).Msg("api key created")
	return key, nil
}

// Verify checks a key id + secret pair against existence, constant-time
// secret equality, active flag, expiry, and the hourly rate budget. On
// success the usage counters are updated.
func (m *APIKeyManager) Verify(keyID, secret string) (*APIKey, error) {
	m.mu.Lock()
	key, ok := m.keys[keyID]
	m.mu.Unlock()

	if !ok {
		return nil, apierror.New(apierror.KindAuthenticationFailed, "unknown api key")
	}
	if subtle.ConstantTimeCompare([]byte(key.Secret), []byte(secret)) != 1 {
		return nil, apierror.New(apierror.KindAuthenticationFailed, "invalid api secret")
	}
	if !key.Active {
		return nil, apierror.New(apierror.KindAuthenticationFailed, "api key is inactive")
	}
	if !key.ExpiresAt.IsZero() && time.Now().After(key.ExpiresAt) {
		return nil, apierror.New(apierror.KindAuthenticationFailed, "api key has expired")
	}

	allowed, reset := m.limiter.Allow(keyID, key.RateLimit)
	if !allowed {
		return nil, apierror.RateLimited(
			fmt.Sprintf("hourly budget of %d requests exhausted", key.RateLimit), reset)
	}

	m.mu.Lock()
	key.LastUsed = time.Now()
	key.UsageCount++
	m.mu.Unlock()

	return key, nil
}

// RevokeKey deactivates a key.
func (m *APIKeyManager) RevokeKey(keyID string) error {
	m.mu.Lock()
	key, ok := m.keys[keyID]
	if ok {
		key.Active = false
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("api key not found: %s", keyID)
	}
	if m.store != nil {
		if err := m.store.SaveAPIKey(key); err != nil {
			return fmt.Errorf("failed to persist api key: %w", err)
		}
	}
	return nil
}

// DeleteKey removes a key entirely.
func (m *APIKeyManager) DeleteKey(keyID string) error {
	m.mu.Lock()
	_, ok := m.keys[keyID]
	delete(m.keys, keyID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("api key not found: %s", keyID)
	}
	if m.store != nil {
		if err := m.store.DeleteAPIKey(keyID); err != nil {
			return fmt.Errorf("failed to delete api key: %w", err)
		}
	}
	return nil
}

// ListKeys returns all keys with secrets blanked.
func (m *APIKeyManager) ListKeys() []*APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*APIKey, 0, len(m.keys))
	for _, k := range m.keys {
		copied := *k
		copied.Secret = ""
		out = append(out, &copied)
	}
	return out
}

// ExtractCredentials pulls the key id and secret from a request. Order:
// X-API-Key/X-API-Secret headers, then "Authorization: Bearer id:secret",
// then query parameters (testing only).
func ExtractCredentials(r *http.Request) (keyID, secret string, ok bool) {
	if id := r.Header.Get("X-API-Key"); id != "" {
		return id, r.Header.Get("X-API-Secret"), true
	}

	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		pair := strings.TrimPrefix(authz, "Bearer ")
		if idx := strings.IndexByte(pair, ':'); idx > 0 {
			return pair[:idx], pair[idx+1:], true
		}
	}

	if id := r.URL.Query().Get("api_key"); id != "" {
		return id, r.URL.Query().Get("api_secret"), true
	}

	return "", "", false
}

// randomToken returns n random bytes encoded as unpadded base64url.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
