package envelope

import (
	"crypto/ed25519"
	"encoding/base64"
	"time"

	"github.com/notecore/notecore/internal/model"
)

// Sign fills the envelope's signature bundle: it computes the canonical
// payload hash and signs it with the given ed25519 private key. Used by
// the CLI and by tests that exercise the full verification path.
func Sign(env *model.WriteEnvelope, keyRef string, priv ed25519.PrivateKey) {
	h := ComputePayloadHash(env)
	sig := ed25519.Sign(priv, []byte(h))
	pub := priv.Public().(ed25519.PublicKey)
	env.Signature = model.SignatureBundle{
		Chain:       "notecore",
		Algorithm:   "ed25519",
		KeyRef:      keyRef,
		Address:     base64.StdEncoding.EncodeToString(pub),
		Signature:   base64.StdEncoding.EncodeToString(sig),
		PayloadHash: h,
		SignedAt:    time.Now().UTC(),
	}
}
