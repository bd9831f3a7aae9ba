// internal/csrf/csrf.go
//
// Stateless CSRF token utilities.
//
// Context
//   Pages and API clients carry an anti-forgery token that the server
//   must verify on any session-mutating method.  The token is stateless:
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, nonce+unixMicro) )
//
//   •  nonce – 16 random bytes.  Prevents replay across users.
//   •  unixMicro – microseconds since Unix epoch, 8 bytes, big-endian.
//   •  HMAC – calculated with the deployment secret.
//
//   Validation checks the signature and ensures the timestamp is within
//   MaxAge.  No server-side sessions are required, keeping verification
//   cache-friendly and multi-instance safe.
//
// Workflow
//   •  GenerateToken()  → token string for renderer or refresh header.
//   •  VerifyToken(tok) → constant-time verify; false on any failure.
//   •  Guard(onFail)    → middleware enforcing the check once per request.
//
//------------------------------------------------------------------------------

package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"os"
	"sync"
	"time"
)

const (
	tokenBytes   = 16 + 8 + sha256.Size // nonce + ts + sig
	maxAge       = 2 * time.Hour        // token valid window
	secretEnvKey = "CAMPUS_CSRF_KEY"    // 32-byte base64 key suggested
)

var (
	secretOnce sync.Once
	secretKey  []byte
)

// SetSecret installs the deployment secret (typically sourced from
// Vault at boot).  A later env or random fallback is skipped.  Calling
// after the first token operation is a no-op.
func SetSecret(key []byte) {
	secretOnce.Do(func() {
		if len(key) >= 32 {
			secretKey = key
			return
		}
		secretKey = fallbackSecret()
	})
}

// GenerateToken creates a new CSRF token.
func GenerateToken() (string, error) {
	sec := fetchSecret()

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(time.Now().UnixMicro()))

	mac := hmac.New(sha256.New, sec)
	mac.Write(nonce)
	mac.Write(ts)
	sig := mac.Sum(nil)

	buf := make([]byte, 0, tokenBytes)
	buf = append(buf, nonce...)
	buf = append(buf, ts...)
	buf = append(buf, sig...)

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyToken returns true if tok passes HMAC and age checks.
func VerifyToken(tok string) bool {
	sec := fetchSecret()

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}

	nonce := raw[:16]
	tsBytes := raw[16:24]
	sig := raw[24:]

	// Timestamp window check.
	ts := binary.BigEndian.Uint64(tsBytes)
	issued := time.UnixMicro(int64(ts))
	if time.Since(issued) > maxAge || time.Until(issued) > time.Minute {
		return false
	}

	// Recompute HMAC.
	mac := hmac.New(sha256.New, sec)
	mac.Write(nonce)
	mac.Write(tsBytes)
	want := mac.Sum(nil)

	return hmac.Equal(sig, want)
}

// fetchSecret returns the process-wide CSRF secret, loading (or
// generating) it exactly once.  Prefer SetSecret at boot; the env key is
// the fallback for development.
func fetchSecret() []byte {
	secretOnce.Do(func() {
		secretKey = fallbackSecret()
	})
	return secretKey
}

func fallbackSecret() []byte {
	if env := os.Getenv(secretEnvKey); env != "" {
		if b, err := base64.RawURLEncoding.DecodeString(env); err == nil && len(b) >= 32 {
			return b
		}
	}
	// Ephemeral random key; resets on restart.
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	os.Stderr.WriteString("[campus] WARNING: CAMPUS_CSRF_KEY not set – using random key\n")
	return key
}
