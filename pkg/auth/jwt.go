package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/log"
)

const (
	// TokenAudience is the expected audience for user tokens.
	TokenAudience = "gateway-clients"

	// TokenIssuer is the issuer for every token the gateway signs.
	TokenIssuer = "gateway"

	// TypeAccess and TypeRefresh are the user token type claims.
	TypeAccess  = "access_token"
	TypeRefresh = "refresh_token"
)

// UserClaims are the claims carried by user tokens
type UserClaims struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager issues, verifies, refreshes, and revokes user JWTs.
// Revoked token ids live in a denylist that a janitor sweeps once the
// underlying token has expired anyway.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> exp

	stopCh chan struct{}
}

// NewTokenManager creates a token manager. The secret must not be empty.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		revoked:    make(map[string]time.Time),
		stopCh:     make(chan struct{}),
	}, nil
}

// IssueAccess signs a new access token for the subject.
func (tm *TokenManager) IssueAccess(subject, userID string, roles, permissions []string) (string, error) {
	return tm.issue(subject, userID, roles, permissions, TypeAccess, tm.accessTTL)
}

// IssueRefresh signs a new refresh token for the subject.
func (tm *TokenManager) IssueRefresh(subject, userID string, roles, permissions []string) (string, error) {
	return tm.issue(subject, userID, roles, permissions, TypeRefresh, tm.refreshTTL)
}

func (tm *TokenManager) issue(subject, userID string, roles, permissions []string, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &UserClaims{
		UserID:      userID,
		Roles:       roles,
		Permissions: permissions,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{TokenAudience},
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token of the expected type, including the
// revocation denylist.
func (tm *TokenManager) Verify(tokenString, expectedType string) (*UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithAudience(TokenAudience),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindAuthenticationFailed, "invalid token", err)
	}

	if claims.TokenType != expectedType {
		return nil, apierror.Newf(apierror.KindAuthenticationFailed,
			"wrong token type: expected %s", expectedType)
	}

	tm.mu.Lock()
	_, revoked := tm.revoked[claims.ID]
	tm.mu.Unlock()
	if revoked {
		return nil, apierror.New(apierror.KindAuthenticationFailed, "token has been revoked")
	}

	return claims, nil
}

// Refresh issues a new access token from a valid refresh token. The
// refresh token's own lifetime is never extended.
func (tm *TokenManager) Refresh(refreshToken string) (string, error) {
	claims, err := tm.Verify(refreshToken, TypeRefresh)
	if err != nil {
		return "", err
	}
	return tm.IssueAccess(claims.Subject, claims.UserID, claims.Roles, claims.Permissions)
}

// Revoke places the token's jti in the denylist until its natural expiry.
func (tm *TokenManager) Revoke(tokenString string) error {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return apierror.Wrap(apierror.KindAuthenticationFailed, "cannot revoke invalid token", err)
	}

	exp := time.Now().Add(tm.refreshTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	tm.mu.Lock()
	tm.revoked[claims.ID] = exp
	tm.mu.Unlock()

	log.WithComponent("auth").Info().Str("jti", claims.ID).Msg("token revoked")
	return nil
}

// RevokedCount returns the denylist size.
func (tm *TokenManager) RevokedCount() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.revoked)
}

// StartJanitor sweeps expired denylist entries every interval.
func (tm *TokenManager) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tm.sweep()
			case <-tm.stopCh:
				return
			}
		}
	}()
}

// StopJanitor stops the denylist sweeper.
func (tm *TokenManager) StopJanitor() {
	close(tm.stopCh)
}

func (tm *TokenManager) sweep() {
	now := time.Now()
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for jti, exp := range tm.revoked {
		if now.After(exp) {
			delete(tm.revoked, jti)
		}
	}
}
