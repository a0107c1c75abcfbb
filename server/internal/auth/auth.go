package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/pikaboard/pikausage/internal/config"
)

type contextKey string

const (
	keyNameKey contextKey = "keyName"

	// sessionKeyName is the scs session field holding the logged-in key's name
	sessionKeyName = "keyName"
)

// HashKey hashes an API key using bcrypt
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckKey compares an API key with a hash
func CheckKey(key, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}

// GenerateKey generates a random API key
func GenerateKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "pku_" + hex.EncodeToString(bytes), nil
}

// Middleware authenticates requests by browser session or API key.
// With no configured keys every request is allowed.
type Middleware struct {
	keys       []config.APIKey
	sessionMgr *scs.SessionManager
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(keys []config.APIKey, sessionMgr *scs.SessionManager) *Middleware {
	return &Middleware{
		keys:       keys,
		sessionMgr: sessionMgr,
	}
}

// Enabled reports whether any API key is configured
func (m *Middleware) Enabled() bool {
	return len(m.keys) > 0
}

// Authenticate returns the name of the configured key matching key
func (m *Middleware) Authenticate(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	for _, k := range m.keys {
		if CheckKey(key, k.Hash) {
			return k.Name, true
		}
	}
	return "", false
}

// Login starts a browser session for the named key
func (m *Middleware) Login(ctx context.Context, name string) error {
	if err := m.sessionMgr.RenewToken(ctx); err != nil {
		return err
	}
	m.sessionMgr.Put(ctx, sessionKeyName, name)
	return nil
}

// Logout destroys the browser session
func (m *Middleware) Logout(ctx context.Context) error {
	return m.sessionMgr.Destroy(ctx)
}

// RequireAuth middleware requires a valid session or API key
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		name := m.sessionMgr.GetString(r.Context(), sessionKeyName)
		if name == "" {
			key := RequestKey(r)
			if key == "" {
				unauthorized(w, "API key required")
				return
			}

			var ok bool
			if name, ok = m.Authenticate(key); !ok {
				unauthorized(w, "Invalid API key")
				return
			}
		}

		ctx := context.WithValue(r.Context(), keyNameKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestKey extracts an API key from X-API-Key or an Authorization bearer token
func RequestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// KeyName returns the authenticated key name from context
func KeyName(ctx context.Context) string {
	if name, ok := ctx.Value(keyNameKey).(string); ok {
		return name
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
