package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mintToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	claims := Claims{
		SessionID: "sess_123",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_123",
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestDecodeClaims(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := DecodeClaims(mintToken(t, expiry))
	if err != nil {
		t.Fatalf("DecodeClaims: %v", err)
	}
	if claims.Subject != "user_123" || claims.SessionID != "sess_123" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestDecodeClaims_Opaque(t *testing.T) {
	if _, err := DecodeClaims("not-a-jwt"); err == nil {
		t.Fatalf("expected error for opaque token")
	}
	if _, err := DecodeClaims(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestDecodeExpiry(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := DecodeExpiry(mintToken(t, expiry))
	if !ok {
		t.Fatalf("expected expiry")
	}
	if !got.Equal(expiry) {
		t.Fatalf("expiry mismatch: got %v want %v", got, expiry)
	}

	if _, ok := DecodeExpiry("opaque"); ok {
		t.Fatalf("opaque token must not report an expiry")
	}
}

func TestBearerHeader(t *testing.T) {
	if BearerHeader("abc") != "Bearer abc" {
		t.Fatalf("unexpected header %q", BearerHeader("abc"))
	}
}
