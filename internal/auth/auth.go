// Package auth extracts the caller's owner identity from a bearer token.
// Token issuance lives elsewhere; this package only verifies.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ownerKey = "gitgrid.owner"

// Default issuer and audience of the tokens handed out by the sign-in flow.
const (
	DefaultIssuer   = "github-oauth-app"
	DefaultAudience = "github-oauth-client"
)

// Config controls token verification.
type Config struct {
	// Secret is the HS256 signing key. Empty disables bearer tokens.
	Secret   string
	Issuer   string
	Audience string
	// AllowHeader accepts an X-User-Id header as the identity when no
	// bearer token is sent. Meant for local development only.
	AllowHeader bool
}

// Identity is the verified caller.
type Identity struct {
	Owner   string `json:"owner"`
	Subject string `json:"subject,omitempty"`
	Expires int64  `json:"exp,omitempty"`
}

var (
	errMissingToken = errors.New("access token required")
	errExpiredToken = errors.New("token expired")
	errInvalidToken = errors.New("invalid token")
)

// Middleware rejects requests without a valid identity with 401 and stores
// the identity for Owner.
func Middleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := identify(cfg, c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": capitalize(err.Error()),
			})
			return
		}
		c.Set(ownerKey, id)
		c.Next()
	}
}

// Owner returns the owner identity stored by Middleware.
func Owner(c *gin.Context) string {
	if id, ok := FromContext(c); ok {
		return id.Owner
	}
	return ""
}

// FromContext returns the identity stored by Middleware.
func FromContext(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(ownerKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}

func identify(cfg Config, r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if cfg.AllowHeader {
			if user := strings.TrimSpace(r.Header.Get("X-User-Id")); user != "" {
				return &Identity{Owner: user}, nil
			}
		}
		return nil, errMissingToken
	}
	if cfg.Secret == "" {
		return nil, errInvalidToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return nil, errMissingToken
	}
	return Verify(cfg, parts[1])
}

// Verify parses an HS256 token and returns its identity. The owner comes
// from the userId claim, falling back to sub.
func Verify(cfg Config, tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errExpiredToken
		}
		return nil, errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidToken
	}
	id := &Identity{
		Owner:   stringClaim(claims, "userId"),
		Subject: stringClaim(claims, "sub"),
	}
	if id.Owner == "" {
		id.Owner = id.Subject
	}
	if id.Owner == "" {
		return nil, errInvalidToken
	}
	if exp, ok := claims["exp"].(float64); ok {
		id.Expires = int64(exp)
	}
	return id, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
