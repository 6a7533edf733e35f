package agent

import "testing"

func TestStateBag_SetGetDelete(t *testing.T) {
	b := NewStateBag()
	if _, ok := b.Get("k"); ok {
		t.Fatal("expected missing key to report not-ok")
	}
	b.Set("k", "v")
	v, ok := b.Get("k")
	if !ok || v != "v" {
		t.Fatalf("got %v, %v", v, ok)
	}
	b.Delete("k")
	if _, ok := b.Get("k"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestStateBag_SnapshotIsIndependentCopy(t *testing.T) {
	b := NewStateBag()
	b.Set("k", "v")
	snap := b.Snapshot()
	snap["k"] = "mutated"
	v, _ := b.Get("k")
	if v != "v" {
		t.Fatalf("mutating the snapshot must not affect the bag, got %v", v)
	}
}

func TestStateBag_RestoreReplacesContents(t *testing.T) {
	b := NewStateBag()
	b.Set("stale", "value")
	b.Restore(map[string]any{"fresh": "value"})
	if _, ok := b.Get("stale"); ok {
		t.Fatal("Restore must clear prior contents")
	}
	v, ok := b.Get("fresh")
	if !ok || v != "value" {
		t.Fatalf("got %v, %v", v, ok)
	}
}

func TestStateBag_RestoreNilClearsBag(t *testing.T) {
	b := NewStateBag()
	b.Set("k", "v")
	b.Restore(nil)
	if _, ok := b.Get("k"); ok {
		t.Fatal("Restore(nil) must clear the bag")
	}
}
