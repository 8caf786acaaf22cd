package quorum_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/syncforge/syncforge/internal/canon"
	"github.com/syncforge/syncforge/internal/quorum"
)

// newKeyHex generates a keypair and returns (pubHex, seedHex).
func newKeyHex(t *testing.T) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv.Seed())
}

func signHex(t *testing.T, msg []byte, seedHex string) string {
	t.Helper()
	kp, err := quorum.ParseSecretKey(seedHex)
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(quorum.Sign(msg, kp.Secret))
}

func TestParseSecretKey_seedAndFull(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	fromSeed, err := quorum.ParseSecretKey(hex.EncodeToString(priv.Seed()))
	if err != nil {
		t.Fatal(err)
	}
	fromFull, err := quorum.ParseSecretKey(hex.EncodeToString(priv))
	if err != nil {
		t.Fatal(err)
	}
	if !fromSeed.Public.Equal(pub) || !fromFull.Public.Equal(pub) {
		t.Error("parsed public halves do not match the generated key")
	}

	if _, err := quorum.ParseSecretKey("deadbeef"); err == nil {
		t.Error("expected error for wrong-length secret")
	}
}

func TestVerifyQuorum_threshold(t *testing.T) {
	msg := []byte("attestation payload")
	pk1, sk1 := newKeyHex(t)
	pk2, sk2 := newKeyHex(t)
	pk3, _ := newKeyHex(t)
	pubkeys := []string{pk1, pk2, pk3}

	sig1 := signHex(t, msg, sk1)
	sig2 := signHex(t, msg, sk2)

	if !quorum.VerifyQuorum(msg, []string{sig1, sig2}, pubkeys, 2) {
		t.Error("2 of 3 valid signatures should satisfy threshold 2")
	}
	if quorum.VerifyQuorum(msg, []string{sig1}, pubkeys, 2) {
		t.Error("1 valid signature should not satisfy threshold 2")
	}
}

func TestVerifyQuorum_duplicateSignatureCountsOnce(t *testing.T) {
	msg := []byte("m")
	pk1, sk1 := newKeyHex(t)
	sig1 := signHex(t, msg, sk1)

	if quorum.VerifyQuorum(msg, []string{sig1, sig1}, []string{pk1}, 2) {
		t.Error("the same (key, signature) pair must never count twice")
	}
	if !quorum.VerifyQuorum(msg, []string{sig1, sig1}, []string{pk1}, 1) {
		t.Error("a single valid pair should satisfy threshold 1")
	}
}

func TestVerifyQuorum_nonPositiveThreshold(t *testing.T) {
	msg := []byte("m")
	pk1, sk1 := newKeyHex(t)
	sig1 := signHex(t, msg, sk1)

	if quorum.VerifyQuorum(msg, []string{sig1}, []string{pk1}, 0) {
		t.Error("threshold 0 must always fail")
	}
	if quorum.VerifyQuorum(msg, []string{sig1}, []string{pk1}, -1) {
		t.Error("negative threshold must always fail")
	}
}

func TestVerifyQuorum_caseInsensitiveKeyDedup(t *testing.T) {
	msg := []byte("m")
	pk1, sk1 := newKeyHex(t)
	sig1 := signHex(t, msg, sk1)

	// The same key listed in two cases is a single candidate, and still
	// verifies the signature.
	upper := []string{pk1, "0X" + pk1} // second entry is garbage hex, ignored
	if !quorum.VerifyQuorum(msg, []string{sig1}, upper, 1) {
		t.Error("valid signature should verify despite junk key entries")
	}
	if !quorum.VerifyQuorum(msg, []string{sig1}, []string{pk1, pk1}, 1) {
		t.Error("duplicated key list should still verify")
	}
}

func TestVerifyQuorum_wrongMessageFails(t *testing.T) {
	pk1, sk1 := newKeyHex(t)
	sig := signHex(t, []byte("signed message"), sk1)
	if quorum.VerifyQuorum([]byte("different message"), []string{sig}, []string{pk1}, 1) {
		t.Error("signature over a different message must not verify")
	}
}

func TestSignObject_verifiesAsQuorum(t *testing.T) {
	_, sk1 := newKeyHex(t)
	_, sk2 := newKeyHex(t)
	keys, err := quorum.ParseSecretKeys(sk1 + "," + sk2)
	if err != nil {
		t.Fatal(err)
	}

	obj := map[string]any{"r1": map[string]any{"decision": "allow"}}
	entries, err := quorum.SignObject(obj, keys)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 signature entries, got %d", len(entries))
	}

	// Reconstruct the message the way a consumer would.
	msg := mustCanon(t, obj)
	sigs := []string{entries[0].Sig, entries[1].Sig}
	pubs := []string{entries[0].Key, entries[1].Key}
	if !quorum.VerifyQuorum(msg, sigs, pubs, 2) {
		t.Error("bundle signatures should satisfy a 2-of-2 quorum")
	}
}

func TestVerifyEnvelope(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	body := map[string]any{"actor": "a1", "nonce": "n1"}
	msg := mustCanon(t, body)
	sig := quorum.Sign(msg, priv)

	env := map[string]any{
		"actor":     "a1",
		"nonce":     "n1",
		"signature": hex.EncodeToString(sig),
	}
	if err := quorum.VerifyEnvelope(env, pub); err != nil {
		t.Errorf("valid envelope rejected: %v", err)
	}

	env["nonce"] = "n2"
	if err := quorum.VerifyEnvelope(env, pub); !errors.Is(err, quorum.ErrInvalidSignature) {
		t.Errorf("tampered envelope: got %v, want ErrInvalidSignature", err)
	}
}

func mustCanon(t *testing.T, v any) []byte {
	t.Helper()
	b, err := canon.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
