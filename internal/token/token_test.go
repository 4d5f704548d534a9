package token

import "testing"

func TestNew_TenThousandDistinct(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		tok, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d iterations", i)
		}
		seen[tok] = struct{}{}
	}
	if len(seen) != 10000 {
		t.Fatalf("expected 10000 tokens, got %d", len(seen))
	}
}

func TestNew_WellFormed(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !WellFormed(tok) {
		t.Fatalf("token %q is not well formed", tok)
	}
	if len(tok) != EncodedLen {
		t.Fatalf("expected length %d, got %d", EncodedLen, len(tok))
	}
}

func TestWellFormed_Rejects(t *testing.T) {
	cases := []string{
		"",
		"short",
		"has/slash-000000000000000000000000000000000",
		"has space000000000000000000000000000000000",
	}
	for _, c := range cases {
		if WellFormed(c) {
			t.Errorf("expected %q to be rejected", c)
		}
	}
}

func TestCancelURL(t *testing.T) {
	got := CancelURL("https://school.example/", "abc_-XYZ")
	want := "https://school.example/cancel/abc_-XYZ"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
