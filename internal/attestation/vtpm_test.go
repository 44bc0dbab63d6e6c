package attestation

import (
	"context"
	"errors"
	"testing"
)

func TestIssueTokenSimulated(t *testing.T) {
	vtpm := NewVtpm(Config{Simulate: true})

	token, err := vtpm.IssueToken(context.Background(), []string{"random-nonce-123"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
}

func TestIssueTokenValidatesNonces(t *testing.T) {
	vtpm := NewVtpm(Config{Simulate: true})

	cases := [][]string{
		nil,
		{},
		{"short"},
		{"this nonce is far far far far far far far far far far too long to be accepted ever"},
	}
	for _, nonces := range cases {
		_, err := vtpm.IssueToken(context.Background(), nonces)
		if err == nil {
			t.Fatalf("expected error for nonces %v", nonces)
		}
		if !errors.Is(err, ErrAttestation) {
			t.Fatalf("expected ErrAttestation, got %v", err)
		}
	}
}
