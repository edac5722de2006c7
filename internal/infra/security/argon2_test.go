package security

import (
	"strings"
	"testing"
)

// testHasher uses lighter factors than production to keep the suite fast.
func testHasher(t *testing.T) *Argon2Hasher {
	t.Helper()

	h, err := NewArgon2Hasher(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}
	return h
}

func mustHash(t *testing.T, h *Argon2Hasher, password string) string {
	t.Helper()

	encoded, err := h.Hash(password)
	if err != nil {
		t.Fatalf("Hash(%q): %v", password, err)
	}
	return encoded
}

func TestArgon2HashRoundTrip(t *testing.T) {
	h := testHasher(t)
	encoded := mustHash(t, h, "Leash&Collar-42")

	if !strings.HasPrefix(encoded, "argon2id$v=19$") {
		t.Fatalf("unexpected hash prefix: %q", encoded)
	}

	ok, err := h.Verify("Leash&Collar-42", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("correct password did not verify")
	}

	ok, err = h.Verify("leash&collar-42", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestArgon2HashSaltsAreUnique(t *testing.T) {
	h := testHasher(t)

	if mustHash(t, h, "same input") == mustHash(t, h, "same input") {
		t.Fatal("two hashes of one password shared a salt")
	}
}

func TestArgon2HashEncodesConfiguredFactors(t *testing.T) {
	h, err := NewArgon2Hasher(Argon2Config{
		Memory:      16 * 1024,
		Iterations:  2,
		Parallelism: 3,
		SaltLength:  24,
		KeyLength:   48,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}

	encoded := mustHash(t, h, "patrol-shift-night")
	if !strings.Contains(encoded, "$m=16384,t=2,p=3$") {
		t.Fatalf("hash does not carry the configured factors: %q", encoded)
	}
}

func TestNewArgon2HasherRejectsWeakFactors(t *testing.T) {
	sound := Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}

	weaken := map[string]func(*Argon2Config){
		"memory":      func(c *Argon2Config) { c.Memory = 4 * 1024 },
		"iterations":  func(c *Argon2Config) { c.Iterations = 0 },
		"parallelism": func(c *Argon2Config) { c.Parallelism = 0 },
		"salt":        func(c *Argon2Config) { c.SaltLength = 4 },
		"key":         func(c *Argon2Config) { c.KeyLength = 8 },
	}

	for name, mutate := range weaken {
		t.Run(name, func(t *testing.T) {
			cfg := sound
			mutate(&cfg)
			if _, err := NewArgon2Hasher(cfg); err == nil {
				t.Fatalf("accepted weak %s", name)
			}
		})
	}
}

func TestArgon2VerifyMalformedHashIsNonMatch(t *testing.T) {
	h := testHasher(t)

	for _, encoded := range []string{
		"",
		"not-a-hash",
		"argon2id$v=19$m=65536,t=3",
		"argon2id$v=18$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA",
		"argon2id$v=19$m=1024,t=3,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		ok, err := h.Verify("password", encoded)
		if err != nil {
			t.Fatalf("Verify(%q) returned error: %v", encoded, err)
		}
		if ok {
			t.Fatalf("Verify(%q) matched a malformed hash", encoded)
		}
	}
}
