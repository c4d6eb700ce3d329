package processor

import (
	"bytes"
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "long secret keeps edges", secret: "sk_live_abcdef123456", want: "sk_l************3456"},
		{name: "short secret fully masked", secret: "short", want: "*****"},
		{name: "empty", secret: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.secret); got != tt.want {
				t.Fatalf("maskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestSealerRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	sealer, err := NewSealer(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	creds := Credentials{SecretKey: "sk_live_abcdef123456", WebhookSecret: "whsec_987654321000"}
	sealed, err := sealer.Seal(creds)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("sk_live")) {
		t.Fatal("sealed payload leaks plaintext secret")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if opened != creds {
		t.Fatalf("round trip mismatch: got %+v", opened)
	}
}

func TestSealerRejectsTamperedPayload(t *testing.T) {
	sealer, err := NewSealer(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sealed, err := sealer.Seal(Credentials{SecretKey: "sk_1", WebhookSecret: "wh_1"})
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	sealed[len(sealed)-1] ^= 0xFF
	if _, err := sealer.Open(sealed); err == nil {
		t.Fatal("expected error for tampered payload")
	}
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	if _, err := NewSealer([]byte("too-short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestCredentialsValidate(t *testing.T) {
	if err := (Credentials{SecretKey: "sk", WebhookSecret: "wh"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Credentials{SecretKey: " ", WebhookSecret: "wh"}).Validate(); err == nil {
		t.Fatal("expected error for blank secret key")
	}
	if err := (Credentials{SecretKey: "sk"}).Validate(); err == nil {
		t.Fatal("expected error for missing webhook secret")
	}
}

func TestCredentialsMasked(t *testing.T) {
	masked := Credentials{
		SecretKey:     "sk_live_abcdef123456",
		WebhookSecret: "whsec_987654321000",
	}.Masked()

	if !strings.HasPrefix(masked.SecretKey, "sk_l") || !strings.HasSuffix(masked.SecretKey, "3456") {
		t.Fatalf("unexpected masked secret key: %q", masked.SecretKey)
	}
	if strings.Contains(masked.SecretKey, "abcdef") {
		t.Fatalf("masked secret key leaks middle: %q", masked.SecretKey)
	}
	if !strings.HasSuffix(masked.WebhookSecret, "1000") {
		t.Fatalf("unexpected masked webhook secret: %q", masked.WebhookSecret)
	}
}
