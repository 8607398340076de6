package httpserver

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/fishnet-client/fishnet/internal/config"
)

// Argon2Params parametrizes the admin password hash (spec §5's
// AdminPasswordHash, read from ADMIN_PASSWORD_HASH and never
// transmitted over the network — this is a loopback-only guard). The
// `configure` subcommand does not produce this value.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

var defaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// HashPassword returns an encoded Argon2id hash in the format
// VerifyPassword accepts, i.e. a value suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	p := defaultArgon2Params
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		p.Iterations, p.Memory, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks password against an encoded Argon2id hash in
// constant time.
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := strconv.ParseUint(parts[1], 10, 32)
	mem, err2 := strconv.ParseUint(parts[2], 10, 32)
	par, err3 := strconv.ParseUint(parts[3], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	if par > math.MaxUint8 {
		par = math.MaxUint8
	}
	actual := argon2.IDKey([]byte(password), salt, uint32(iters), uint32(mem), uint8(par), defaultArgon2Params.KeyLen)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

// SessionManager issues and validates short-lived HMAC-signed tokens for
// the admin-gated /stats endpoint.
type SessionManager struct {
	secret []byte
}

// NewSessionManager builds a SessionManager from the configured secret.
func NewSessionManager(cfg config.Config) *SessionManager {
	return &SessionManager{secret: []byte(cfg.AdminSessionSecret)}
}

// IssueToken returns an HMAC-signed "username.expiry.signature" token
// valid for ttl.
func (sm *SessionManager) IssueToken(username string, ttl time.Duration) string {
	exp := strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
	payload := username + "." + exp
	return payload + "." + sm.sign(payload)
}

func (sm *SessionManager) sign(payload string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateToken reports whether token is well-formed, correctly signed,
// and unexpired.
func (sm *SessionManager) ValidateToken(token string) bool {
	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return false
	}
	username, exp, sig := parts[0], parts[1], parts[2]
	if username == "" {
		return false
	}
	expected := sm.sign(username + "." + exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return false
	}
	expSec, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return false
	}
	return time.Now().Unix() < expSec
}

// AdminGuard requires HTTP Basic credentials matching the configured
// admin username/password hash; on success it also accepts (and sets)
// a session cookie so repeated polls don't re-hash the password.
func AdminGuard(cfg config.Config, sm *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie("fishnet_session"); err == nil && sm.ValidateToken(cookie.Value) {
				next.ServeHTTP(w, r)
				return
			}
			user, pass, ok := r.BasicAuth()
			if !ok || user != cfg.AdminUsername || !VerifyPassword(pass, cfg.AdminPasswordHash) {
				w.Header().Set("WWW-Authenticate", `Basic realm="fishnet"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     "fishnet_session",
				Value:    sm.IssueToken(user, time.Hour),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteStrictMode,
			})
			next.ServeHTTP(w, r)
		})
	}
}
