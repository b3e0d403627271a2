package receipts

import (
	"strings"
	"testing"
	"time"
)

func fixedIssuer(secret string, at time.Time) *TokenIssuer {
	issuer := NewTokenIssuer(secret)
	issuer.now = func() time.Time { return at }
	return issuer
}

func TestIssueThenVerify(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := fixedIssuer("download-secret", now)

	issued, err := issuer.Issue("rcpt_1", 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := now.Add(DefaultTokenTTL); !issued.ExpiresAt.Equal(want) {
		t.Errorf("default TTL should be 900s, expires %v want %v", issued.ExpiresAt, want)
	}

	if reason := issuer.Verify("rcpt_1", issued.Token); reason != VerifyOK {
		t.Fatalf("fresh token should verify, got %s", reason)
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := fixedIssuer("download-secret", now)

	issued, err := issuer.Issue("rcpt_1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	issuer.now = func() time.Time { return now.Add(2 * time.Minute) }
	if reason := issuer.Verify("rcpt_1", issued.Token); reason != VerifyExpired {
		t.Fatalf("expected expired, got %s", reason)
	}
}

func TestVerifyWrongReceipt(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := fixedIssuer("download-secret", now)

	issued, err := issuer.Issue("rcpt_1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if reason := issuer.Verify("rcpt_2", issued.Token); reason != VerifyInvalidSignature {
		t.Fatalf("expected invalid_signature, got %s", reason)
	}
}

func TestVerifyMalformedTokens(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := fixedIssuer("download-secret", now)

	cases := []struct {
		name  string
		token string
		want  VerifyReason
	}{
		{"empty", "", VerifyMalformed},
		{"no separator", "17000000001234abcd", VerifyMalformed},
		{"missing signature", "1700000600.", VerifyMalformed},
		{"non-numeric expiry", "soon.abcd", VerifyBadExpiry},
		{"tampered signature", "1700000600.abcd", VerifyInvalidSignature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if reason := issuer.Verify("rcpt_1", tc.token); reason != tc.want {
				t.Fatalf("got %s, want %s", reason, tc.want)
			}
		})
	}
}

func TestVerifyTamperedExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := fixedIssuer("download-secret", now)

	issued, err := issuer.Issue("rcpt_1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, sig, _ := strings.Cut(issued.Token, ".")
	forged := "1800000000." + sig
	if reason := issuer.Verify("rcpt_1", forged); reason != VerifyInvalidSignature {
		t.Fatalf("extending expiry must invalidate the signature, got %s", reason)
	}
}

func TestNoSecret(t *testing.T) {
	issuer := NewTokenIssuer("")
	if _, err := issuer.Issue("rcpt_1", time.Minute); err == nil {
		t.Fatal("Issue without secret should error")
	}
	if reason := issuer.Verify("rcpt_1", "1700000600.abcd"); reason != VerifyNoSecret {
		t.Fatalf("expected no_secret, got %s", reason)
	}
}
