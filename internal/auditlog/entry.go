package auditlog

import (
	"encoding/json"

	"github.com/syncforge/syncforge/internal/canon"
)

// Entry is a single immutable record in a registry's audit chain.
//
// Material holds the canonical encoding of {registry, action, seq, payload}
// exactly as it was hashed. HashSelf covers HashPrev plus Material, so an
// edit to any stored field is detectable by replaying the chain. The first
// entry of a registry has an empty HashPrev.
type Entry struct {
	Registry string          `json:"registry"`
	AuditSeq int64           `json:"audit_seq"`
	Action   string          `json:"action"`
	Material json.RawMessage `json:"payload"`
	HashPrev []byte          `json:"hash_prev"`
	HashSelf []byte          `json:"hash_self"`
}

// material is the hashed shape of one accepted write.
type material struct {
	Registry string `json:"registry"`
	Action   string `json:"action"`
	Seq      int64  `json:"seq"`
	Payload  any    `json:"payload"`
}

// encodeMaterial canonicalizes the audit material for a write.
func encodeMaterial(registry, action string, seq int64, payload any) ([]byte, error) {
	return canon.Marshal(material{
		Registry: registry,
		Action:   action,
		Seq:      seq,
		Payload:  payload,
	})
}

// chainHash computes an entry's self hash from its predecessor's hash and
// its canonical material.
func chainHash(prev, canonicalMaterial []byte) []byte {
	buf := make([]byte, 0, len(prev)+len(canonicalMaterial))
	buf = append(buf, prev...)
	buf = append(buf, canonicalMaterial...)
	return canon.Digest(buf)
}
