package ledger

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddRejectsDuplicate(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	fv := FileVersion{Filename: "notes.txt", Hash: "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be0", Comment: "first"}
	appended, err := reg.Add("alice", fv)
	if err != nil {
		t.Fatal(err)
	}
	if !appended {
		t.Fatal("expected first add to append")
	}

	appended, err = reg.Add("alice", fv)
	if err != nil {
		t.Fatal(err)
	}
	if appended {
		t.Fatal("expected second identical add to be rejected (invariant 2)")
	}
}

func TestNthMatchOrdersByFilenameAppendOrder(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	versions := []FileVersion{
		{Filename: "notes.txt", Hash: "h1", Comment: "first"},
		{Filename: "other.txt", Hash: "h2", Comment: "unrelated"},
		{Filename: "notes.txt", Hash: "h3", Comment: "second"},
	}
	for _, v := range versions {
		if _, err := reg.Add("alice", v); err != nil {
			t.Fatal(err)
		}
	}

	got, ok, err := reg.NthMatch("alice", "notes.txt", 2)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a second match")
	}
	want := FileVersion{Filename: "notes.txt", Hash: "h3", Comment: "second"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NthMatch mismatch (-want +got):\n%s", diff)
	}

	if _, ok, err := reg.NthMatch("alice", "notes.txt", 3); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Fatal("expected no third match")
	}
}

func TestListFilterMatchesUnfilteredSubset(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	versions := []FileVersion{
		{Filename: "a.txt", Hash: "h1", Comment: "a1"},
		{Filename: "b.txt", Hash: "h2", Comment: "b1"},
		{Filename: "a.txt", Hash: "h3", Comment: "a2"},
	}
	for _, v := range versions {
		if _, err := reg.Add("alice", v); err != nil {
			t.Fatal(err)
		}
	}

	all, err := reg.List("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}

	filtered, err := reg.List("alice", "a.txt")
	if err != nil {
		t.Fatal(err)
	}

	var wantFromAll []FileVersion
	for _, r := range all {
		if r.Filename == "a.txt" {
			wantFromAll = append(wantFromAll, r)
		}
	}
	if diff := cmp.Diff(wantFromAll, filtered); diff != "" {
		t.Errorf("filtered LIST mismatch (-want +got):\n%s", diff)
	}
}

func TestLedgerRecordsAreSectorAligned(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	if _, err := reg.Add("bob", FileVersion{Filename: "x", Hash: "h", Comment: "c"}); err != nil {
		t.Fatal(err)
	}
	recs, err := reg.List("bob", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if RecordSize%512 != 0 {
		t.Fatalf("RecordSize=%d is not a multiple of 512", RecordSize)
	}
}
