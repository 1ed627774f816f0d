package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexops/gateway/pkg/apierror"
)

// memStore is an in-memory KeyStore for tests
type memStore struct {
	keys map[string]*APIKey
}

func newMemStore() *memStore {
	return &memStore{keys: make(map[string]*APIKey)}
}

func (s *memStore) SaveAPIKey(key *APIKey) error {
	copied := *key
	s.keys[key.KeyID] = &copied
	return nil
}

func (s *memStore) ListAPIKeys() ([]*APIKey, error) {
	out := make([]*APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		copied := *k
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memStore) DeleteAPIKey(keyID string) error {
	delete(s.keys, keyID)
	return nil
}

func TestCreateAndVerifyKey(t *testing.T) {
	m, err := NewAPIKeyManager(nil)
	require.NoError(t, err)

	key, err := m.CreateKey("ci", []string{"models:*"}, 100, time.Time{})
	require.NoError(t, err)
	assert.True(t, key.Active)
	assert.Contains(t, key.KeyID, "ak_")
	assert.NotEmpty(t, key.Secret)

	got, err := m.Verify(key.KeyID, key.Secret)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
	assert.False(t, got.LastUsed.IsZero())
}

func TestVerifyFailures(t *testing.T) {
	m, err := NewAPIKeyManager(nil)
	require.NoError(t, err)

	key, err := m.CreateKey("ci", nil, 100, time.Time{})
	require.NoError(t, err)

	t.Run("unknown key", func(t *testing.T) {
		_, err := m.Verify("ak_missing", "whatever")
		assertKind(t, err, apierror.KindAuthenticationFailed)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := m.Verify(key.KeyID, "wrong")
		assertKind(t, err, apierror.KindAuthenticationFailed)
	})

	t.Run("revoked key", func(t *testing.T) {
		revoked, err := m.CreateKey("revoked", nil, 100, time.Time{})
		require.NoError(t, err)
		require.NoError(t, m.RevokeKey(revoked.KeyID))
		_, err = m.Verify(revoked.KeyID, revoked.Secret)
		assertKind(t, err, apierror.KindAuthenticationFailed)
	})

	t.Run("expired key", func(t *testing.T) {
		expired, err := m.CreateKey("expired", nil, 100, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		_, err = m.Verify(expired.KeyID, expired.Secret)
		assertKind(t, err, apierror.KindAuthenticationFailed)
	})
}

func TestVerifyRateLimit(t *testing.T) {
	m, err := NewAPIKeyManager(nil)
	require.NoError(t, err)

	key, err := m.CreateKey("ci", nil, 3, time.Time{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := m.Verify(key.KeyID, key.Secret)
		require.NoError(t, err, "call %d within budget", i+1)
	}

	_, err = m.Verify(key.KeyID, key.Secret)
	require.Error(t, err)

	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.KindRateLimited, apiErr.Kind)
	assert.False(t, apiErr.ResetTime.IsZero())
}

func TestKeyPersistence(t *testing.T) {
	store := newMemStore()

	m, err := NewAPIKeyManager(store)
	require.NoError(t, err)
	key, err := m.CreateKey("ci", []string{"models:*"}, 100, time.Time{})
	require.NoError(t, err)

	// A fresh manager over the same store sees the key.
	m2, err := NewAPIKeyManager(store)
	require.NoError(t, err)
	got, err := m2.Verify(key.KeyID, key.Secret)
	require.NoError(t, err)
	assert.Equal(t, "ci", got.Name)

	// Deletion propagates to the store.
	require.NoError(t, m2.DeleteKey(key.KeyID))
	m3, err := NewAPIKeyManager(store)
	require.NoError(t, err)
	_, err = m3.Verify(key.KeyID, key.Secret)
	assert.Error(t, err)
}

func TestListKeysBlanksSecrets(t *testing.T) {
	m, err := NewAPIKeyManager(nil)
	require.NoError(t, err)
	_, err = m.CreateKey("ci", nil, 100, time.Time{})
	require.NoError(t, err)

	keys := m.ListKeys()
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].Secret)
}

func TestHasPermission(t *testing.T) {
	key := &APIKey{Permissions: []string{"models:*", "chat:send"}}

	assert.True(t, key.HasPermission("models:read"))
	assert.True(t, key.HasPermission("chat:send"))
	assert.False(t, key.HasPermission("chat:delete"))
	assert.False(t, key.HasPermission("agents:read"))
}

func TestExtractCredentials(t *testing.T) {
	t.Run("headers", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/models", nil)
		r.Header.Set("X-API-Key", "ak_1")
		r.Header.Set("X-API-Secret", "s3cret")
		id, secret, ok := ExtractCredentials(r)
		assert.True(t, ok)
		assert.Equal(t, "ak_1", id)
		assert.Equal(t, "s3cret", secret)
	})

	t.Run("bearer pair", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/models", nil)
		r.Header.Set("Authorization", "Bearer ak_1:s3cret")
		id, secret, ok := ExtractCredentials(r)
		assert.True(t, ok)
		assert.Equal(t, "ak_1", id)
		assert.Equal(t, "s3cret", secret)
	})

	t.Run("query", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/models?api_key=ak_1&api_secret=s3cret", nil)
		id, secret, ok := ExtractCredentials(r)
		assert.True(t, ok)
		assert.Equal(t, "ak_1", id)
		assert.Equal(t, "s3cret", secret)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/models", nil)
		_, _, ok := ExtractCredentials(r)
		assert.False(t, ok)
	})
}

func TestInternalTokens(t *testing.T) {
	im, err := NewInternalTokenManager("internal-secret", nil)
	require.NoError(t, err)

	token, err := im.Issue("agent-service", nil)
	require.NoError(t, err)

	claims, err := im.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-service", claims.ServiceName)
	assert.True(t, claims.HasPermission("system:anything"))

	_, err = im.Issue("rogue-service", nil)
	assert.Error(t, err)
}

func TestInternalVerifyRejectsUserToken(t *testing.T) {
	im, err := NewInternalTokenManager("same-secret", nil)
	require.NoError(t, err)
	tm, err := NewTokenManager("same-secret", time.Hour, time.Hour)
	require.NoError(t, err)

	userToken, err := tm.IssueAccess("alice", "u-1", nil, nil)
	require.NoError(t, err)

	_, err = im.Verify(userToken)
	assert.Error(t, err)
}
