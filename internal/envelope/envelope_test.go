package envelope

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store/sqlite"
)

func strPtr(s string) *string { return &s }

func testEnvelope() *model.WriteEnvelope {
	return &model.WriteEnvelope{
		Operation:       model.OpCreate,
		Domain:          "notes",
		CanonicalPath:   "notes/projects/alpha.md",
		ContentMarkdown: strPtr("# Alpha\n\nKickoff notes."),
		Metadata: model.EventMetadata{
			WriterType: "agent",
			WriterID:   "agent-1",
		},
		Event: model.EventInfo{
			SourceCoreID:   "core-a",
			SourceSeq:      7,
			OccurredAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			IdempotencyKey: "core-a:7",
		},
	}
}

func TestComputePayloadHashDeterministic(t *testing.T) {
	a := ComputePayloadHash(testEnvelope())
	b := ComputePayloadHash(testEnvelope())
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}

	mutated := testEnvelope()
	mutated.ContentMarkdown = strPtr("# Alpha\n\nDifferent.")
	if ComputePayloadHash(mutated) == a {
		t.Fatal("content change did not change hash")
	}
}

func TestComputePayloadHashFieldBoundaries(t *testing.T) {
	// Shifting bytes across a field boundary must change the hash even
	// when the concatenated text is identical.
	a := testEnvelope()
	a.CanonicalPath = "notes/a.md"
	a.ContentMarkdown = strPtr("extra")
	b := testEnvelope()
	b.CanonicalPath = "notes/a.md\nextra"
	b.ContentMarkdown = strPtr("")
	if ComputePayloadHash(a) == ComputePayloadHash(b) {
		t.Fatal("field boundary shift did not change hash")
	}
}

func TestComputePayloadHashNilContent(t *testing.T) {
	env := testEnvelope()
	env.ContentMarkdown = nil
	empty := testEnvelope()
	empty.ContentMarkdown = strPtr("")
	if ComputePayloadHash(env) != ComputePayloadHash(empty) {
		t.Fatal("nil content should hash like empty content")
	}
}

func TestVerifyHashMismatch(t *testing.T) {
	st, err := sqlite.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	v := NewVerifier(st.Signers())

	env := testEnvelope()
	env.Signature.PayloadHash = "deadbeef"
	err = v.Verify(context.Background(), env, true)
	if err == nil || !strings.Contains(err.Error(), "HASH_MISMATCH") {
		t.Fatalf("expected HASH_MISMATCH, got %v", err)
	}
	if !errors.Is(err, model.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestVerifySkipSignatureStillChecksHash(t *testing.T) {
	st, err := sqlite.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	v := NewVerifier(st.Signers())

	env := testEnvelope()
	env.Signature.PayloadHash = ComputePayloadHash(env)
	// No signature at all, skip mode accepts it.
	if err := v.Verify(context.Background(), env, true); err != nil {
		t.Fatalf("skip mode rejected valid hash: %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	env := testEnvelope()
	Sign(env, "key-1", priv)

	v := NewVerifier(st.Signers())

	// Unknown signer.
	err = v.Verify(ctx, env, false)
	if err == nil || !strings.Contains(err.Error(), "SIGNATURE_INVALID") {
		t.Fatalf("expected SIGNATURE_INVALID for unknown signer, got %v", err)
	}

	if _, err := st.Signers().Upsert(ctx, &model.Signer{
		WriterType: "agent",
		WriterID:   "agent-1",
		KeyRef:     "key-1",
		Address:    env.Signature.Address,
		PublicKey:  pub,
	}); err != nil {
		t.Fatalf("upsert signer: %v", err)
	}

	if err := v.Verify(ctx, env, false); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	// A different key's signature must fail.
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	forged := testEnvelope()
	Sign(forged, "key-1", otherPriv)
	err = v.Verify(ctx, forged, false)
	if err == nil || !strings.Contains(err.Error(), "SIGNATURE_INVALID") {
		t.Fatalf("expected SIGNATURE_INVALID for forged signature, got %v", err)
	}
}

func TestVerifyRejectsUnknownAlgorithm(t *testing.T) {
	st, err := sqlite.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	v := NewVerifier(st.Signers())

	env := testEnvelope()
	env.Signature.PayloadHash = ComputePayloadHash(env)
	env.Signature.Algorithm = "secp256k1"
	err = v.Verify(context.Background(), env, false)
	if err == nil || !strings.Contains(err.Error(), "SIGNATURE_INVALID") {
		t.Fatalf("expected SIGNATURE_INVALID for unknown algorithm, got %v", err)
	}
}
