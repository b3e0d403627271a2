package signature

import (
	"fmt"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
)

const testSecret = "whsec_test"

func fixedVerifier(secret string, at time.Time) *Verifier {
	v := NewVerifier(secret, DefaultTolerance)
	v.now = func() time.Time { return at }
	return v
}

func fixedSigner(secret string, at time.Time) *Signer {
	s := NewSigner(secret)
	s.now = func() time.Time { return at }
	return s
}

func TestSignThenVerify(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"eventId":"evt_1"}`)

	header := fixedSigner(testSecret, now).Sign(body)
	if header == "" {
		t.Fatal("expected non-empty header")
	}

	result, err := fixedVerifier(testSecret, now).Verify(body, header)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Skipped {
		t.Fatal("verification should not report skipped with a secret configured")
	}
}

func TestVerifyAcceptsRotatedSignatures(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"eventId":"evt_1"}`)

	good := fixedSigner(testSecret, now).Sign(body)
	// simulate rotation: a stale candidate first, the valid one second
	_, v1, _ := strings.Cut(good, "v1=")
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), strings.Repeat("ab", 32), v1)

	if _, err := fixedVerifier(testSecret, now).Verify(body, header); err != nil {
		t.Fatalf("rotated header should verify: %v", err)
	}
}

func TestVerifyRejectsMutatedSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"eventId":"evt_1"}`)
	header := fixedSigner(testSecret, now).Sign(body)

	// flip one hex character of the signature
	mutated := header[:len(header)-1]
	if strings.HasSuffix(header, "0") {
		mutated += "1"
	} else {
		mutated += "0"
	}

	_, err := fixedVerifier(testSecret, now).Verify(body, mutated)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %s", pkgerrors.As(err).Code())
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	signedAt := time.Unix(1700000000, 0)
	body := []byte(`{}`)
	header := fixedSigner(testSecret, signedAt).Sign(body)

	late := signedAt.Add(DefaultTolerance + time.Second)
	if _, err := fixedVerifier(testSecret, late).Verify(body, header); err == nil {
		t.Fatal("expected tolerance error")
	}

	within := signedAt.Add(DefaultTolerance - time.Second)
	if _, err := fixedVerifier(testSecret, within).Verify(body, header); err != nil {
		t.Fatalf("timestamp within tolerance should verify: %v", err)
	}
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := fixedVerifier(testSecret, now)
	body := []byte(`{}`)

	cases := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no pairs", "garbage"},
		{"missing timestamp", "v1=abcd"},
		{"non-numeric timestamp", "t=soon,v1=abcd"},
		{"missing signature", fmt.Sprintf("t=%d", now.Unix())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(body, tc.header)
			if err == nil {
				t.Fatalf("expected error for %q", tc.header)
			}
			if pkgerrors.As(err).Code() != pkgerrors.CodeUnauthorized {
				t.Fatalf("expected unauthorized, got %s", pkgerrors.As(err).Code())
			}
		})
	}
}

func TestVerifySkippedWithoutSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	result, err := fixedVerifier("", now).Verify([]byte(`{}`), "")
	if err != nil {
		t.Fatalf("Verify without secret: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected skipped result without a secret")
	}
}

func TestSignWithoutSecret(t *testing.T) {
	if header := NewSigner("").Sign([]byte(`{}`)); header != "" {
		t.Fatalf("expected empty header, got %q", header)
	}
}
