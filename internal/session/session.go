// internal/session/session.go
//
// Signed cookie session.
//
// Context
// -------
// The pipeline only needs two things from a session: the authenticated
// user id, if any, and the issue timestamp for logging.  The cookie
// payload is
//
//	base64url( userID | unixMicro | HMAC_SHA256(secret, userID+unixMicro) )
//
// so no server-side store is required and the layout stays multi-instance
// safe.  The session storage backend proper (remember-me, SSO state) is
// an external collaborator; this file is deliberately the whole surface.
//
// Workflow
//   - Login(w, r, userID)  → sets the signed cookie.
//   - Logout(w)            → clears it.
//   - Current(r)           → verified *Session or nil.
package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	cookieName   = "campus_session"
	payloadBytes = 8 + 8 + sha256.Size // userID + ts + sig
	maxAge       = 14 * 24 * time.Hour
	secretEnvKey = "CAMPUS_SESSION_KEY" // 32-byte base64 key suggested
)

var (
	secretOnce sync.Once
	secretKey  []byte
)

// SetSecret installs the deployment secret (typically sourced from
// Vault at boot).  Calling after the first cookie operation is a no-op.
func SetSecret(key []byte) {
	secretOnce.Do(func() {
		if len(key) >= 32 {
			secretKey = key
			return
		}
		secretKey = make([]byte, 32)
		_, _ = rand.Read(secretKey)
	})
}

// Session carries the verified cookie claims for one request.
type Session struct {
	UserID   uint64
	IssuedAt time.Time
}

// Login sets a signed session cookie for userID.
func Login(w http.ResponseWriter, r *http.Request, userID uint64) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encode(userID, time.Now()),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(maxAge),
	})
}

// Logout clears the session cookie.
func Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Current returns the verified session, or nil for anonymous callers.
// Any signature or age failure is treated as anonymous; the pipeline
// never errors on a bad cookie.
func Current(r *http.Request) *Session {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	return decode(c.Value)
}

//
// encoding
//

func encode(userID uint64, now time.Time) string {
	sec := fetchSecret()

	buf := make([]byte, 0, payloadBytes)
	var id, ts [8]byte
	binary.BigEndian.PutUint64(id[:], userID)
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixMicro()))

	mac := hmac.New(sha256.New, sec)
	mac.Write(id[:])
	mac.Write(ts[:])

	buf = append(buf, id[:]...)
	buf = append(buf, ts[:]...)
	buf = append(buf, mac.Sum(nil)...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func decode(v string) *Session {
	sec := fetchSecret()

	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil || len(raw) != payloadBytes {
		return nil
	}
	id, ts, sig := raw[:8], raw[8:16], raw[16:]

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(ts)))
	if time.Since(issued) > maxAge || time.Until(issued) > time.Minute {
		return nil
	}

	mac := hmac.New(sha256.New, sec)
	mac.Write(id)
	mac.Write(ts)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil
	}
	return &Session{
		UserID:   binary.BigEndian.Uint64(id),
		IssuedAt: issued,
	}
}

// fetchSecret loads the process-wide session secret exactly once.  When
// CAMPUS_SESSION_KEY is unset a random key is generated, which invalidates
// sessions on restart.
func fetchSecret() []byte {
	secretOnce.Do(func() {
		if env := os.Getenv(secretEnvKey); env != "" {
			if b, err := base64.RawURLEncoding.DecodeString(env); err == nil && len(b) >= 32 {
				secretKey = b
				return
			}
		}
		secretKey = make([]byte, 32)
		_, _ = rand.Read(secretKey)
		os.Stderr.WriteString("[campus] WARNING: CAMPUS_SESSION_KEY not set – using random key\n")
	})
	return secretKey
}
