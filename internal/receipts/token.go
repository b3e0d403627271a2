package receipts

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTokenTTL applies when Issue is called without an explicit TTL.
const DefaultTokenTTL = 900 * time.Second

// VerifyReason explains why token verification failed. Callers map these onto
// distinct HTTP statuses, so "expired" must stay distinguishable from
// "invalid" and from "misconfigured".
type VerifyReason string

const (
	VerifyOK               VerifyReason = "ok"
	VerifyMalformed        VerifyReason = "malformed"
	VerifyBadExpiry        VerifyReason = "bad_expiry"
	VerifyExpired          VerifyReason = "expired"
	VerifyInvalidSignature VerifyReason = "invalid_signature"
	VerifyNoSecret         VerifyReason = "no_secret"
)

// IssuedToken is a minted download credential.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies short-lived download tokens bound to a
// receipt id. Token format: "{expiresAtUnix}.{hexHmac}" where the HMAC covers
// "{receiptId}.{expiresAtUnix}".
type TokenIssuer struct {
	secret string
	now    func() time.Time
}

// NewTokenIssuer builds an issuer for the server download secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: secret, now: time.Now}
}

// Issue mints a token for receiptID. A non-positive ttl falls back to the
// default 15 minutes.
func (t *TokenIssuer) Issue(receiptID string, ttl time.Duration) (IssuedToken, error) {
	if t.secret == "" {
		return IssuedToken{}, fmt.Errorf("download token secret not configured")
	}
	if receiptID == "" {
		return IssuedToken{}, fmt.Errorf("receipt id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	expiresAt := t.now().Add(ttl)
	exp := expiresAt.Unix()
	return IssuedToken{
		Token:     fmt.Sprintf("%d.%s", exp, t.sign(receiptID, exp)),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks token against receiptID, failing closed with a reason.
func (t *TokenIssuer) Verify(receiptID, token string) VerifyReason {
	if t.secret == "" {
		return VerifyNoSecret
	}

	expRaw, sig, found := strings.Cut(token, ".")
	if !found || expRaw == "" || sig == "" {
		return VerifyMalformed
	}
	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return VerifyBadExpiry
	}
	if exp <= t.now().Unix() {
		return VerifyExpired
	}
	if !hmac.Equal([]byte(sig), []byte(t.sign(receiptID, exp))) {
		return VerifyInvalidSignature
	}
	return VerifyOK
}

func (t *TokenIssuer) sign(receiptID string, exp int64) string {
	mac := hmac.New(sha256.New, []byte(t.secret))
	fmt.Fprintf(mac, "%s.%d", receiptID, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
