package security

import "testing"

func TestOTPGenerator_GenerateOTP(t *testing.T) {
	g := NewOTPGenerator()

	for _, length := range []int{4, 6, 8} {
		code := g.GenerateOTP(length)
		if len(code) != length {
			t.Fatalf("length %d: got %q", length, code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}

	// zero and negative fall back to six digits
	if code := g.GenerateOTP(0); len(code) != 6 {
		t.Fatalf("expected 6 digits for length 0, got %q", code)
	}
	if code := g.GenerateOTP(-3); len(code) != 6 {
		t.Fatalf("expected 6 digits for negative length, got %q", code)
	}
}

func TestOTPGenerator_CodesVary(t *testing.T) {
	g := NewOTPGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[g.GenerateOTP(6)] = true
	}
	// 50 draws from a million-value space virtually never collapse to one
	if len(seen) < 2 {
		t.Fatalf("expected varying codes, got %d distinct", len(seen))
	}
}

func TestOTPGenerator_GenerateToken(t *testing.T) {
	g := NewOTPGenerator()

	a, b := g.GenerateToken(), g.GenerateToken()
	if a == "" || b == "" {
		t.Fatalf("empty token")
	}
	if a == b {
		t.Fatalf("tokens must be unique, got %q twice", a)
	}
}
