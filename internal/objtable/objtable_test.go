package objtable

import "testing"

func TestCreateLookupByInodeAndUUID(t *testing.T) {
	tbl := New()

	e := tbl.Create(42)
	if e.RefCount() != 1 {
		t.Fatalf("RefCount = %d, want 1", e.RefCount())
	}

	byInode, ok := tbl.LookupByInode(42)
	if !ok || byInode != e {
		t.Fatalf("LookupByInode(42) = %v, %v", byInode, ok)
	}

	byUUID, ok := tbl.LookupByUUID(e.UUID)
	if !ok || byUUID != e {
		t.Fatalf("LookupByUUID = %v, %v", byUUID, ok)
	}

	if tbl.Size() != 1 {
		t.Fatalf("Size = %d, want 1", tbl.Size())
	}
}

func TestCreateSameInodeReturnsSameEntry(t *testing.T) {
	tbl := New()

	first := tbl.Create(7)
	second := tbl.Create(7)

	if second != first {
		t.Fatal("Create for an existing inode should return the existing entry")
	}
	if second.UUID != first.UUID {
		t.Fatal("the second Create must keep the first entry's UUID")
	}
	if second.RefCount() != 2 {
		t.Fatalf("RefCount = %d, want 2", second.RefCount())
	}
	if tbl.Size() != 1 {
		t.Fatalf("Size = %d, want 1", tbl.Size())
	}
}

func TestReleaseRemovesEntryAtZero(t *testing.T) {
	tbl := New()
	tbl.Create(5)
	tbl.Create(5)

	tbl.Release(5, 1)
	if _, ok := tbl.LookupByInode(5); !ok {
		t.Fatal("entry should still be present after dropping to refCount 1")
	}

	tbl.Release(5, 1)
	if _, ok := tbl.LookupByInode(5); ok {
		t.Fatal("entry should be gone after refCount reaches 0")
	}
	if tbl.Size() != 0 {
		t.Fatalf("Size = %d, want 0", tbl.Size())
	}
}

func TestReleaseRemovesBothIndexEntries(t *testing.T) {
	tbl := New()
	e := tbl.Create(6)

	tbl.Release(6, 1)
	if _, ok := tbl.LookupByUUID(e.UUID); ok {
		t.Fatal("UUID index should forget the entry once its count hits 0")
	}
}

func TestReleaseUnknownInodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Release on an unknown inode to panic")
		}
	}()

	tbl := New()
	tbl.Release(123, 1)
}

func TestReleaseExceedingRefCountPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Release exceeding refCount to panic")
		}
	}()

	tbl := New()
	tbl.Create(8)
	tbl.Release(8, 5)
}
