package security

import (
	"strings"
	"testing"
	"time"
)

func TestHashAndVerify(t *testing.T) {
	ph := NewPasswordHasher()

	encoded, err := ph.Hash("Tr0ub4dor&3")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", encoded)
	}

	ok, err := ph.Verify("Tr0ub4dor&3", encoded)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("correct password did not verify")
	}

	ok, err = ph.Verify("wrong-password", encoded)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHash_UniqueSalt(t *testing.T) {
	ph := NewPasswordHasher()

	h1, err := ph.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h2, err := ph.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ (random salt)")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	ph := NewPasswordHasher()

	if _, err := ph.Verify("pw", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
	if _, err := ph.Verify("pw", "$argon2id$v=19$bad$x$y"); err == nil {
		t.Fatal("expected error for malformed parameters")
	}
}

func TestDummyVerify(t *testing.T) {
	ph := NewPasswordHasher()
	if ph.DummyVerify("anything at all") {
		t.Fatal("dummy hash must never verify")
	}
}

func TestDummyVerify_ComparableCost(t *testing.T) {
	ph := NewPasswordHasher()
	encoded, err := ph.Hash("Tr0ub4dor&3")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	measure := func(verify func()) time.Duration {
		var best time.Duration
		for i := 0; i < 3; i++ {
			start := time.Now()
			verify()
			if d := time.Since(start); best == 0 || d < best {
				best = d
			}
		}
		return best
	}

	missCost := measure(func() { ph.DummyVerify("wrong-password") })
	wrongCost := measure(func() {
		if _, err := ph.Verify("wrong-password", encoded); err != nil {
			t.Fatalf("Verify error: %v", err)
		}
	})

	// Coarse bound: both paths run the same key derivation, so a username
	// miss must not be an order of magnitude faster than a wrong password.
	if missCost*5 < wrongCost || wrongCost*5 < missCost {
		t.Fatalf("verification cost diverges: miss=%s wrong=%s", missCost, wrongCost)
	}
}
