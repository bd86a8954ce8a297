package envelope

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// Verifier checks envelope integrity against the signer registry.
type Verifier struct {
	signers store.Signers
}

// NewVerifier returns a Verifier backed by the given signer registry.
func NewVerifier(signers store.Signers) *Verifier {
	return &Verifier{signers: signers}
}

// Verify recomputes the canonical payload hash and, unless
// skipSignature is set, validates the envelope signature against the
// registered signer key. The hash check always runs; skipSignature
// only bypasses the signature step.
func (v *Verifier) Verify(ctx context.Context, env *model.WriteEnvelope, skipSignature bool) error {
	computed := ComputePayloadHash(env)
	if env.Signature.PayloadHash != computed {
		return fmt.Errorf("%w: HASH_MISMATCH: payload hash %q does not match canonical payload",
			model.ErrIntegrity, env.Signature.PayloadHash)
	}
	if skipSignature {
		return nil
	}
	if env.Signature.Algorithm != "ed25519" {
		return fmt.Errorf("%w: SIGNATURE_INVALID: unsupported algorithm %q",
			model.ErrIntegrity, env.Signature.Algorithm)
	}
	signer, err := v.signers.Get(ctx, env.Metadata.WriterType, env.Metadata.WriterID)
	if err != nil {
		return fmt.Errorf("%w: SIGNATURE_INVALID: no registered signer for %s/%s",
			model.ErrIntegrity, env.Metadata.WriterType, env.Metadata.WriterID)
	}
	pub := publicKey(signer)
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: SIGNATURE_INVALID: signer %s/%s has no usable public key",
			model.ErrIntegrity, env.Metadata.WriterType, env.Metadata.WriterID)
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature.Signature)
	if err != nil {
		return fmt.Errorf("%w: SIGNATURE_INVALID: signature is not valid base64", model.ErrIntegrity)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(computed), sig) {
		return fmt.Errorf("%w: SIGNATURE_INVALID: signature does not verify for %s/%s",
			model.ErrIntegrity, env.Metadata.WriterType, env.Metadata.WriterID)
	}
	return nil
}

// publicKey prefers the stored raw key and falls back to decoding the
// signer address as base64.
func publicKey(s *model.Signer) []byte {
	if len(s.PublicKey) == ed25519.PublicKeySize {
		return s.PublicKey
	}
	if raw, err := base64.StdEncoding.DecodeString(s.Address); err == nil {
		return raw
	}
	return nil
}
