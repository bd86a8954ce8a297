// Package envelope provides canonical payload hashing and signature
// verification for write envelopes.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/notecore/notecore/internal/model"
)

// ComputePayloadHash returns the hex-encoded SHA-256 of the canonical
// payload serialization. Each covered field is length-prefixed so the
// encoding is injective: a field containing separator bytes cannot
// collide with an adjacent field. Absent content serializes as the
// empty string.
func ComputePayloadHash(env *model.WriteEnvelope) string {
	content := ""
	if env.ContentMarkdown != nil {
		content = *env.ContentMarkdown
	}
	fields := []string{
		env.Operation,
		env.Domain,
		env.CanonicalPath,
		content,
		env.Metadata.WriterType,
		env.Metadata.WriterID,
		env.Event.SourceCoreID,
		strconv.FormatInt(env.Event.SourceSeq, 10),
		env.Event.OccurredAt.UTC().Format(time.RFC3339Nano),
		env.Event.IdempotencyKey,
	}
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
