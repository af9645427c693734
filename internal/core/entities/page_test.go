package entities

import (
	"golang.org/x/crypto/blake2b"
	"testing"
)

// TestPageBlake2bInvariant exercises spec.md §8 invariant 1:
// P.blake2b == blake2b(P.source) for all pages after parsing.
func TestPageBlake2bInvariant(t *testing.T) {
	source := "Some *emphasis* text.\n"
	p := NewPage("a.txt", source)

	want := blake2b.Sum256([]byte(source))
	if p.BLAKE2b != want {
		t.Errorf("Page.BLAKE2b mismatch: got %x want %x", p.BLAKE2b, want)
	}
}

func TestPageEmptySourceParsesToEmptyRoot(t *testing.T) {
	p := NewPage("empty.txt", "")
	if p.AST == nil {
		t.Fatal("AST should never be nil")
	}
	if len(p.AST.NodeChildren()) != 0 {
		t.Errorf("expected no children for empty source, got %d", len(p.AST.NodeChildren()))
	}
}

func TestStaticAssetSetKeyedByFileId(t *testing.T) {
	set := NewStaticAssetSet()
	a1 := NewStaticAsset("k1", "images/x.png", "images/x.png", true)
	a1.Load([]byte("first"))
	set.Add(a1)

	a2 := NewStaticAsset("k2-different-key", "images/x.png", "images/x.png", true)
	a2.Load([]byte("second"))
	set.Add(a2) // replaces a1 since equality is on FileId alone

	if set.Len() != 1 {
		t.Fatalf("expected 1 asset (dedup by fileid), got %d", set.Len())
	}
	got, ok := set.Get("images/x.png")
	if !ok || string(got.Data) != "second" {
		t.Errorf("expected the second add to win, got %+v", got)
	}
}

func TestPageDependsOnStale(t *testing.T) {
	p := NewPage("page.txt", "content")
	p.Dependencies["other.rst"] = blake2b.Sum256([]byte("v1"))

	stale := p.DependsOnStale(func(id FileId) ([32]byte, bool) {
		if id == "other.rst" {
			return blake2b.Sum256([]byte("v1")), true
		}
		return [32]byte{}, false
	})
	if stale {
		t.Error("expected not stale when dependency hash matches")
	}

	stale = p.DependsOnStale(func(id FileId) ([32]byte, bool) {
		return blake2b.Sum256([]byte("v2")), true
	})
	if !stale {
		t.Error("expected stale when dependency hash changed")
	}
}
