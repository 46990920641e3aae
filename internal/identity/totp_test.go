package identity

import (
	"strings"
	"testing"
	"time"
)

func TestHOTP_RFC6238Vectors(t *testing.T) {
	key := []byte("12345678901234567890")
	cases := map[int64]string{
		59:          "287082",
		1111111109:  "081804",
		1234567890:  "005924",
		2000000000:  "279037",
		20000000000: "353130",
	}
	for ts, want := range cases {
		if got := hotp(key, ts/totpPeriod); got != want {
			t.Fatalf("hotp at %d = %s, want %s", ts, got, want)
		}
	}
}

func TestVerifyTOTP_Skew(t *testing.T) {
	secret, err := generateTOTPSecret()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	key, _ := totpEncoding.DecodeString(secret)
	now := time.Unix(1_800_000_000, 0)
	step := now.Unix() / totpPeriod

	if !verifyTOTP(secret, hotp(key, step-1), now) {
		t.Fatalf("previous step should be accepted")
	}
	if verifyTOTP(secret, hotp(key, step+2), now) {
		t.Fatalf("two steps ahead should be rejected")
	}
	if verifyTOTP(secret, "12a456", now) || verifyTOTP(secret, "1234", now) {
		t.Fatalf("malformed codes should be rejected")
	}
}

func TestProvisionURI(t *testing.T) {
	uri := provisionURI("Expensly", "ana@acme.io", "ABC")
	if !strings.HasPrefix(uri, "otpauth://totp/Expensly:ana@acme.io?") || !strings.Contains(uri, "secret=ABC") {
		t.Fatalf("unexpected uri: %s", uri)
	}
}
