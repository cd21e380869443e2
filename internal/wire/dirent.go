package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DirEntryRecord is one fixed-size directory entry as written into an
// auxiliary arena buffer by a Readdir reply. Directory listings are too
// large to fit inline, so they travel through the same arena mechanism as
// read/write payloads.
type DirEntryRecord struct {
	Inode   uint64
	Offset  uint64
	Type    uint8
	NameLen uint8
	Pad     [2]byte
	Name    [MaxNameLen]byte
}

// DirEntryPlusRecord extends DirEntryRecord with the attribute fields a
// Readdirplus reply refreshes alongside the name, avoiding a follow-up
// GetAttr round trip per entry.
type DirEntryPlusRecord struct {
	DirEntryRecord
	Size  uint64
	Mode  uint32
	Nlink uint32
	Uid   uint32
	Gid   uint32
}

func dirEntryRecordSize() int     { return binary.Size(DirEntryRecord{}) }
func dirEntryPlusRecordSize() int { return binary.Size(DirEntryPlusRecord{}) }

// EncodeDirEntries writes as many records as fit in buf, returning the
// count actually written. Callers compare the return value against
// len(records) to detect truncation.
func EncodeDirEntries(buf []byte, records []DirEntryRecord) (int, error) {
	recSize := dirEntryRecordSize()
	capacity := len(buf) / recSize

	n := len(records)
	if n > capacity {
		n = capacity
	}

	w := bytes.NewBuffer(buf[:0:0])
	for i := 0; i < n; i++ {
		if err := binary.Write(w, binary.LittleEndian, records[i]); err != nil {
			return 0, fmt.Errorf("wire: encode dir entry %d: %w", i, err)
		}
	}
	copy(buf, w.Bytes())
	return n, nil
}

// DecodeDirEntries reads count fixed-size records back out of buf.
func DecodeDirEntries(buf []byte, count int) ([]DirEntryRecord, error) {
	recSize := dirEntryRecordSize()
	out := make([]DirEntryRecord, count)
	r := bytes.NewReader(buf[:recSize*count])
	for i := 0; i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, fmt.Errorf("wire: decode dir entry %d: %w", i, err)
		}
	}
	return out, nil
}

// EncodeDirEntriesPlus is EncodeDirEntries' counterpart for Readdirplus
// replies.
func EncodeDirEntriesPlus(buf []byte, records []DirEntryPlusRecord) (int, error) {
	recSize := dirEntryPlusRecordSize()
	capacity := len(buf) / recSize

	n := len(records)
	if n > capacity {
		n = capacity
	}

	w := bytes.NewBuffer(buf[:0:0])
	for i := 0; i < n; i++ {
		if err := binary.Write(w, binary.LittleEndian, records[i]); err != nil {
			return 0, fmt.Errorf("wire: encode dir entry+ %d: %w", i, err)
		}
	}
	copy(buf, w.Bytes())
	return n, nil
}

// DecodeDirEntriesPlus reads count fixed-size records back out of buf.
func DecodeDirEntriesPlus(buf []byte, count int) ([]DirEntryPlusRecord, error) {
	recSize := dirEntryPlusRecordSize()
	out := make([]DirEntryPlusRecord, count)
	r := bytes.NewReader(buf[:recSize*count])
	for i := 0; i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, fmt.Errorf("wire: decode dir entry+ %d: %w", i, err)
		}
	}
	return out, nil
}
