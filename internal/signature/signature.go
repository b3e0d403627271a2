package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
)

// DefaultTolerance bounds how stale a signed timestamp may be.
const DefaultTolerance = 300 * time.Second

// Header is the canonical signature header name.
const Header = "x-webhook-signature"

// Result reports how an inbound payload was authenticated.
type Result struct {
	// Skipped is true when no secret is configured and verification was
	// bypassed. Callers log this distinctly from a verified payload.
	Skipped bool
}

// Verifier checks provider signatures over raw webhook bodies.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier. An empty secret switches verification into
// skipped mode rather than failing.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify authenticates rawBody against the signature header value. The header
// carries a unix timestamp and one or more candidate signatures (multiple v1
// values appear during secret rotation).
func (v *Verifier) Verify(rawBody []byte, header string) (Result, error) {
	if v.secret == "" {
		return Result{Skipped: true}, nil
	}

	if strings.TrimSpace(header) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing signature header")
	}

	ts, candidates, err := parseHeader(header)
	if err != nil {
		return Result{}, err
	}

	age := v.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(v.tolerance/time.Second) {
		return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature timestamp outside tolerance")
	}

	expected := compute(v.secret, ts, rawBody)
	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return Result{}, nil
		}
	}
	return Result{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature mismatch")
}

// Signer builds outbound signature headers in the same format the verifier
// accepts. Used by the webhook simulator and the resend path.
type Signer struct {
	secret string
	now    func() time.Time
}

// NewSigner builds a signer for the shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the header value for rawBody, or an empty string when no
// secret is configured.
func (s *Signer) Sign(rawBody []byte) string {
	if s.secret == "" {
		return ""
	}
	ts := s.now().Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, compute(s.secret, ts, rawBody))
}

func parseHeader(header string) (int64, []string, error) {
	var tsRaw string
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			tsRaw = value
		case "v1":
			if value != "" {
				candidates = append(candidates, value)
			}
		}
	}

	if tsRaw == "" {
		return 0, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature timestamp missing")
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature timestamp invalid")
	}
	if len(candidates) == 0 {
		return 0, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature value missing")
	}
	return ts, candidates, nil
}

func compute(secret string, ts int64, rawBody []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
