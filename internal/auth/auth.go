package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	PermissionUpload = "files:upload"

	contextKey = "auth"
)

type AuthContext struct {
	Subject     string
	Method      string
	Permissions []string
}

type Config struct {
	Passwords    []string
	JWKSUrl      string
	Issuer       string
	Audience     string
	JWKSCacheTTL int
}

type cachedJWKS struct {
	set       jwk.Set
	expiresAt time.Time
}

type JWKSClient struct {
	url        string
	cache      *cachedJWKS
	refresh    *jwksRefresh
	cacheTTL   time.Duration
	mu         sync.Mutex
	httpClient *http.Client
}

// jwksRefresh is a fetch in flight; done closes once set and err are final.
type jwksRefresh struct {
	done chan struct{}
	set  jwk.Set
	err  error
}

func NewJWKSClient(url string, cacheTTLSeconds int) *JWKSClient {
	ttl := time.Duration(cacheTTLSeconds) * time.Second
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	return &JWKSClient{
		url:        url,
		cacheTTL:   ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKeySet returns the cached key set while it is fresh. Only one refresh
// runs at a time and the lock is not held during it: callers that already
// have a stale set keep using it, the rest wait for the fetch. A failed
// refresh falls back to the stale set when there is one.
func (c *JWKSClient) GetKeySet(ctx context.Context) (jwk.Set, error) {
	c.mu.Lock()
	if c.cache != nil && time.Now().Before(c.cache.expiresAt) {
		set := c.cache.set
		c.mu.Unlock()
		return set, nil
	}

	if r := c.refresh; r != nil {
		stale := c.cache
		c.mu.Unlock()
		if stale != nil {
			return stale.set, nil
		}
		select {
		case <-r.done:
			return r.set, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r := &jwksRefresh{done: make(chan struct{})}
	c.refresh = r
	c.mu.Unlock()

	set, err := c.fetch(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.refresh = nil
	switch {
	case err == nil:
		c.cache = &cachedJWKS{set: set, expiresAt: time.Now().Add(c.cacheTTL)}
	case c.cache != nil:
		set, err = c.cache.set, nil
	}
	c.mu.Unlock()

	r.set, r.err = set, err
	close(r.done)
	return set, err
}

func (c *JWKSClient) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	set, err := jwk.ParseReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return set, nil
}

func VerifyToken(ctx context.Context, tokenString string, jwksClient *JWKSClient, config Config) (*AuthContext, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid token format")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode token header: %w", err)
	}

	var header map[string]interface{}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse token header: %w", err)
	}

	kid, ok := header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token missing kid in header")
	}

	keySet, err := jwksClient.GetKeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key not found for kid: %s", kid)
	}

	var publicKey interface{}
	if err := key.Raw(&publicKey); err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	verifiedToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := verifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	var permissionsList []string
	if permissions, ok := claims["permissions"].([]interface{}); ok {
		for _, p := range permissions {
			if pStr, ok := p.(string); ok {
				permissionsList = append(permissionsList, pStr)
			}
		}
	}

	return &AuthContext{
		Subject:     sub,
		Method:      "jwt",
		Permissions: permissionsList,
	}, nil
}

// CheckPassword compares the raw header value against every configured
// upload password in constant time.
func CheckPassword(candidate string, passwords []string) bool {
	matched := 0
	for _, p := range passwords {
		matched |= subtle.ConstantTimeCompare([]byte(candidate), []byte(p))
	}
	return matched == 1
}

// Middleware accepts either a configured upload password as the raw
// Authorization header or, when a JWKS URL is set, a Bearer token. Tokens
// must carry the files:upload permission.
func Middleware(config Config, logger *slog.Logger) gin.HandlerFunc {
	var jwksClient *JWKSClient
	if config.JWKSUrl != "" {
		jwksClient = NewJWKSClient(config.JWKSUrl, config.JWKSCacheTTL)
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c)
			return
		}

		if len(config.Passwords) > 0 && CheckPassword(header, config.Passwords) {
			c.Set(contextKey, &AuthContext{Subject: "password", Method: "password"})
			c.Next()
			return
		}

		if jwksClient != nil && strings.HasPrefix(header, "Bearer ") {
			authContext, err := VerifyToken(c.Request.Context(), strings.TrimPrefix(header, "Bearer "), jwksClient, config)
			if err != nil {
				logger.Warn("Rejected upload token", "error", err)
				unauthorized(c)
				return
			}
			if !slices.Contains(authContext.Permissions, PermissionUpload) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "status": "Forbidden"})
				return
			}
			c.Set(contextKey, authContext)
			c.Next()
			return
		}

		logger.Warn("Rejected upload credentials", "clientIp", c.ClientIP())
		unauthorized(c)
	}
}

func GetAuthContext(c *gin.Context) (*AuthContext, bool) {
	authContext, exists := c.Get(contextKey)
	if !exists {
		return nil, false
	}

	ctx, ok := authContext.(*AuthContext)
	return ctx, ok
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "status": "Unauthorized"})
}
