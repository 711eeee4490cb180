package providers

import (
	"context"
	"testing"
)

func TestIDTokenPrincipal(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers email claim", func(t *testing.T) {
		token := Token{IDToken: unsignedIDToken(t, map[string]any{
			"email": "user@example.com",
			"sub":   "1234",
		})}
		principal, err := IDTokenPrincipal(ctx, token)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if principal != "user@example.com" {
			t.Fatalf("unexpected principal: %q", principal)
		}
	})

	t.Run("falls back to sub claim", func(t *testing.T) {
		token := Token{IDToken: unsignedIDToken(t, map[string]any{"sub": "1234"})}
		principal, err := IDTokenPrincipal(ctx, token)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if principal != "1234" {
			t.Fatalf("unexpected principal: %q", principal)
		}
	})

	t.Run("missing id_token", func(t *testing.T) {
		if _, err := IDTokenPrincipal(ctx, Token{}); err == nil {
			t.Fatalf("expected error for missing id_token")
		}
	})

	t.Run("malformed id_token", func(t *testing.T) {
		if _, err := IDTokenPrincipal(ctx, Token{IDToken: "not-a-jwt"}); err == nil {
			t.Fatalf("expected error for malformed id_token")
		}
	})

	t.Run("no usable claims", func(t *testing.T) {
		token := Token{IDToken: unsignedIDToken(t, map[string]any{"aud": "client-1"})}
		if _, err := IDTokenPrincipal(ctx, token); err == nil {
			t.Fatalf("expected error for missing claims")
		}
	})
}
