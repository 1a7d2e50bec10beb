package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKID = "test-key"

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProtectedRouter(cfg Config) *gin.Engine {
	r := gin.New()
	r.POST("/upload", Middleware(cfg, discardLogger()), func(c *gin.Context) {
		authContext, ok := GetAuthContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, authContext.Method+":"+authContext.Subject)
	})
	return r
}

func doUpload(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckPassword(t *testing.T) {
	passwords := []string{"alpha", "beta"}

	assert.True(t, CheckPassword("alpha", passwords))
	assert.True(t, CheckPassword("beta", passwords))
	assert.False(t, CheckPassword("gamma", passwords))
	assert.False(t, CheckPassword("alph", passwords))
	assert.False(t, CheckPassword("", passwords))
	assert.False(t, CheckPassword("alpha", nil))
}

func TestMiddleware_Password(t *testing.T) {
	r := newProtectedRouter(Config{Passwords: []string{"hunter2"}})

	w := doUpload(r, "hunter2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "password:password", w.Body.String())

	w = doUpload(r, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":401,"status":"Unauthorized"}`, w.Body.String())

	w = doUpload(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_NoCredentialsConfigured(t *testing.T) {
	r := newProtectedRouter(Config{})

	w := doUpload(r, "anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKID))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	f := &jwksFixture{key: priv}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *jwksFixture) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func TestMiddleware_JWT(t *testing.T) {
	f := newJWKSFixture(t)
	cfg := Config{
		JWKSUrl:  f.server.URL,
		Issuer:   "https://issuer.test",
		Audience: "uploads",
	}
	r := newProtectedRouter(cfg)
	exp := time.Now().Add(time.Hour).Unix()

	valid := f.token(t, jwt.MapClaims{
		"sub":         "user-1",
		"iss":         "https://issuer.test",
		"aud":         "uploads",
		"exp":         exp,
		"permissions": []string{PermissionUpload},
	})
	w := doUpload(r, "Bearer "+valid)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jwt:user-1", w.Body.String())

	noPermission := f.token(t, jwt.MapClaims{
		"sub": "user-2", "iss": "https://issuer.test", "aud": "uploads", "exp": exp,
	})
	w = doUpload(r, "Bearer "+noPermission)
	assert.Equal(t, http.StatusForbidden, w.Code)

	wrongIssuer := f.token(t, jwt.MapClaims{
		"sub": "user-3", "iss": "https://evil.test", "aud": "uploads", "exp": exp,
		"permissions": []string{PermissionUpload},
	})
	w = doUpload(r, "Bearer "+wrongIssuer)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := f.token(t, jwt.MapClaims{
		"sub": "user-4", "iss": "https://issuer.test", "aud": "uploads",
		"exp": time.Now().Add(-time.Hour).Unix(), "permissions": []string{PermissionUpload},
	})
	w = doUpload(r, "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doUpload(r, "Bearer not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, int32(1), f.requests.Load(), "key set must be cached")
}

func TestJWKSClient_ServesStaleSetOnFailure(t *testing.T) {
	f := newJWKSFixture(t)
	client := NewJWKSClient(f.server.URL, 1)

	set, err := client.GetKeySet(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	client.mu.Lock()
	client.cache.expiresAt = time.Now().Add(-time.Second)
	client.url = "http://127.0.0.1:1/unreachable"
	client.mu.Unlock()

	stale, err := client.GetKeySet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stale.Len())
}

func TestJWKSClient_RefreshDoesNotBlockStaleReaders(t *testing.T) {
	f := newJWKSFixture(t)
	client := NewJWKSClient(f.server.URL, 1)
	ctx := context.Background()

	_, err := client.GetKeySet(ctx)
	require.NoError(t, err)

	var slowRequests atomic.Int32
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slowRequests.Add(1)
		once.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(slow.Close)

	client.mu.Lock()
	client.cache.expiresAt = time.Now().Add(-time.Second)
	client.url = slow.URL
	client.mu.Unlock()

	refreshed := make(chan error, 1)
	go func() {
		_, err := client.GetKeySet(ctx)
		refreshed <- err
	}()
	<-started

	done := make(chan struct{})
	go func() {
		defer close(done)
		set, err := client.GetKeySet(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, set.Len())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("reader with a stale key set waited for the refresh")
	}

	close(release)
	require.NoError(t, <-refreshed)
	<-done
	assert.Equal(t, int32(1), slowRequests.Load())
}

func TestJWKSClient_ConcurrentColdFetchesShareOneRequest(t *testing.T) {
	f := newJWKSFixture(t)

	resp, err := http.Get(f.server.URL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	var requests atomic.Int32
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	gated := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		once.Do(func() { close(started) })
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(gated.Close)

	client := NewJWKSClient(gated.URL, 60)

	var wg sync.WaitGroup
	fetch := func() {
		defer wg.Done()
		set, err := client.GetKeySet(context.Background())
		if assert.NoError(t, err) {
			assert.Equal(t, 1, set.Len())
		}
	}

	wg.Add(1)
	go fetch()
	<-started

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go fetch()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), requests.Load())
}
