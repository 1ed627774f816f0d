package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/rbac"
)

// TypeInternal is the type claim for service-to-service tokens.
const TypeInternal = "internal_token"

// InternalClaims are the claims carried by service-to-service tokens
type InternalClaims struct {
	ServiceName string   `json:"service_name"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the token grants the required permission.
// Internal tokens carry an implicit system:* grant.
func (c *InternalClaims) HasPermission(required string) bool {
	if rbac.Match("system:*", required) {
		return true
	}
	for _, p := range c.Permissions {
		if rbac.Match(p, required) {
			return true
		}
	}
	return false
}

// InternalTokenManager signs and verifies service-to-service tokens.
// It uses a dedicated secret distinct from the user JWT secret and only
// accepts service names from a closed allow-list.
type InternalTokenManager struct {
	secret  []byte
	ttl     time.Duration
	allowed map[string]bool
}

// DefaultInternalServices is the closed set of services permitted to hold
// internal tokens.
var DefaultInternalServices = []string{
	"gateway",
	"agent-service",
	"chat-service",
	"knowledge-service",
	"model-service",
	"mcp-service",
	"system-service",
}

// NewInternalTokenManager creates the manager. An empty allow-list falls
// back to DefaultInternalServices.
func NewInternalTokenManager(secret string, allowedServices []string) (*InternalTokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("internal secret must not be empty")
	}
	if len(allowedServices) == 0 {
		allowedServices = DefaultInternalServices
	}
	allowed := make(map[string]bool, len(allowedServices))
	for _, s := range allowedServices {
		allowed[s] = true
	}
	return &InternalTokenManager{
		secret:  []byte(secret),
		ttl:     time.Hour,
		allowed: allowed,
	}, nil
}

// Issue signs a short-lived token for the named service. Permissions
// default to system:*.
func (im *InternalTokenManager) Issue(serviceName string, permissions []string) (string, error) {
	if !im.allowed[serviceName] {
		return "", fmt.Errorf("service not in allow-list: %s", serviceName)
	}
	if len(permissions) == 0 {
		permissions = []string{"system:*"}
	}

	now := time.Now()
	claims := &InternalClaims{
		ServiceName: serviceName,
		Permissions: permissions,
		TokenType:   TypeInternal,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   serviceName,
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(im.ttl)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(im.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign internal token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, expiry, issuer, type, and the service
// allow-list.
func (im *InternalTokenManager) Verify(tokenString string) (*InternalClaims, error) {
	claims := &InternalClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return im.secret, nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apierror.Wrap(apierror.KindAuthenticationFailed, "invalid internal token", err)
	}

	if claims.TokenType != TypeInternal {
		return nil, apierror.New(apierror.KindAuthenticationFailed, "not an internal token")
	}
	if !im.allowed[claims.ServiceName] {
		return nil, apierror.Newf(apierror.KindAuthenticationFailed,
			"service not in allow-list: %s", claims.ServiceName)
	}

	return claims, nil
}
