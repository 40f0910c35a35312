package evidencehash

import (
	"strings"
	"testing"
)

func TestCanonicalSHA256DeterministicForSameState(t *testing.T) {
	a := map[string]any{
		"b": 2,
		"a": map[string]any{"y": 2, "x": 1},
	}
	b := map[string]any{
		"a": map[string]any{"x": 1, "y": 2},
		"b": 2,
	}

	ha, _, err := CanonicalSHA256(a)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	hb, _, err := CanonicalSHA256(b)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected same hash, got %s vs %s", ha, hb)
	}
}

func TestCanonicalSHA256ChangesWhenStateChanges(t *testing.T) {
	ha, _, _ := CanonicalSHA256(map[string]any{"a": 1})
	hb, _, _ := CanonicalSHA256(map[string]any{"a": 2})
	if ha == hb {
		t.Fatalf("expected different hashes")
	}
}

func TestSHA256HexKnownVector(t *testing.T) {
	got := HashStringSHA256Hex("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestSHA256ReaderMatchesBytes(t *testing.T) {
	data := strings.Repeat("evidence", 1000)
	got, n, err := SHA256Reader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("SHA256Reader: %v", err)
	}
	if n != int64(len(data)) || got != SHA256Hex([]byte(data)) {
		t.Fatalf("reader hash mismatch: %s (%d)", got, n)
	}
}

func TestHashesMatch(t *testing.T) {
	h := HashStringSHA256Hex("abc")
	if !HashesMatch(h, strings.ToUpper(h)) {
		t.Fatalf("expected case-insensitive match")
	}
	if HashesMatch(h, HashStringSHA256Hex("abd")) {
		t.Fatalf("expected mismatch")
	}
	if HashesMatch("", "") {
		t.Fatalf("empty hashes must not match")
	}
}
