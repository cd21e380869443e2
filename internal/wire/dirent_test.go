package wire

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestEncodeDecodeDirEntriesRoundTrip(t *testing.T) {
	records := []DirEntryRecord{
		{Inode: 2, Offset: 1, Type: 4, NameLen: 3},
		{Inode: 3, Offset: 2, Type: 8, NameLen: 5},
	}
	PutString(records[0].Name[:], "dir")
	PutString(records[1].Name[:], "file1")

	buf := make([]byte, ArenaBufferSizeForTest())
	written, err := EncodeDirEntries(buf, records)
	if err != nil {
		t.Fatalf("EncodeDirEntries: %v", err)
	}
	if written != len(records) {
		t.Fatalf("written = %d, want %d", written, len(records))
	}

	got, err := DecodeDirEntries(buf, written)
	if err != nil {
		t.Fatalf("DecodeDirEntries: %v", err)
	}
	if diff := pretty.Compare(records, got); diff != "" {
		t.Fatalf("decoded records differ from originals:\n%s", diff)
	}
}

func TestEncodeDirEntriesTruncatesWhenBufferTooSmall(t *testing.T) {
	records := make([]DirEntryRecord, 100)
	for i := range records {
		records[i] = DirEntryRecord{Inode: uint64(i + 2), Offset: uint64(i + 1)}
		PutString(records[i].Name[:], "x")
	}

	buf := make([]byte, dirEntryRecordSize()*3)
	written, err := EncodeDirEntries(buf, records)
	if err != nil {
		t.Fatalf("EncodeDirEntries: %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}
}

func TestEncodeDecodeDirEntriesPlusRoundTrip(t *testing.T) {
	records := []DirEntryPlusRecord{
		{DirEntryRecord: DirEntryRecord{Inode: 2, Offset: 1, Type: 4}, Size: 4096, Mode: 0755, Nlink: 2, Uid: 1000, Gid: 1000},
	}
	PutString(records[0].Name[:], "sub")

	buf := make([]byte, ArenaBufferSizeForTest())
	written, err := EncodeDirEntriesPlus(buf, records)
	if err != nil {
		t.Fatalf("EncodeDirEntriesPlus: %v", err)
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}

	got, err := DecodeDirEntriesPlus(buf, written)
	if err != nil {
		t.Fatalf("DecodeDirEntriesPlus: %v", err)
	}
	if got[0].Size != 4096 || got[0].Mode != 0755 || got[0].Nlink != 2 {
		t.Fatalf("decoded = %+v", got[0])
	}
}

// ArenaBufferSizeForTest avoids importing package shm (which would create
// an import cycle back into wire) just to size a scratch buffer.
func ArenaBufferSizeForTest() int { return 64 * 1024 }
