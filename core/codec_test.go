package core

import (
	"reflect"
	"testing"
	"time"
)

func TestJSONCredentialCodec_RoundTrip(t *testing.T) {
	codec := JSONCredentialCodec{}
	expiresAt := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	record := CredentialRecord{
		Principal:    "user@example.com",
		Provider:     ProviderGCP,
		Service:      ServiceIMAP,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
		Scopes:       []string{"openid", "https://www.googleapis.com/auth/gmail.modify"},
		Raw:          map[string]any{"token_type": "Bearer"},
	}

	payload, err := codec.Encode(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(decoded, record) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, record)
	}
}

func TestJSONCredentialCodec_PreservesMissingRefreshToken(t *testing.T) {
	codec := JSONCredentialCodec{}

	record := CredentialRecord{
		Principal:   "user@example.com",
		Provider:    ProviderGCP,
		Service:     ServiceIMAP,
		AccessToken: "access-1",
		ExpiresAt:   time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
		Scopes:      []string{"openid"},
	}

	payload, err := codec.Encode(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RefreshToken != "" {
		t.Fatalf("expected empty refresh token, got %q", decoded.RefreshToken)
	}
}

func TestJSONCredentialCodec_DecodeRejectsEmptyPayload(t *testing.T) {
	codec := JSONCredentialCodec{}
	if _, err := codec.Decode(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := codec.Decode([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
