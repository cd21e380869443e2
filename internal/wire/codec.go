package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxPayloadSize bounds every FUSE-class and native-class parameter/reply
// struct defined in this package. It is checked at init time below rather
// than relying on a reviewer noticing a struct grew past the budget.
const MaxPayloadSize = 512

// RawPayload is the fixed-size byte region inside a slot body that carries
// whichever class-tagged struct the envelope's (class, type) pair selects.
// Every payload struct is pure fixed-size data (numeric fields and byte
// arrays, no strings/slices/maps), so encoding/binary can serialize it
// directly with no length prefixes.
type RawPayload [MaxPayloadSize]byte

// EncodePayload writes v — a pointer to one of the Params/Reply structs in
// this package — into dst using little-endian, packed layout (no alignment
// padding between fields).
func EncodePayload(dst *RawPayload, v interface{}) error {
	n := binary.Size(v)
	if n < 0 {
		return fmt.Errorf("wire: %T is not a fixed-size payload", v)
	}
	if n > len(dst) {
		return fmt.Errorf("wire: %T is %d bytes, exceeds payload budget %d", v, n, len(dst))
	}
	for i := range dst {
		dst[i] = 0
	}
	buf := bytes.NewBuffer(dst[:0:0])
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return err
	}
	copy(dst[:], buf.Bytes())
	return nil
}

// DecodePayload reads a previously encoded struct back out of src. v must
// be a pointer to the same type that was passed to EncodePayload for the
// message's (class, type) pair; callers determine that type by switching
// on the envelope before calling DecodePayload.
func DecodePayload(src *RawPayload, v interface{}) error {
	return binary.Read(bytes.NewReader(src[:]), binary.LittleEndian, v)
}

// Body is the in-process representation of a slot's payload: the
// class/type tag, the embedded statistics block, and the raw bytes that
// EncodePayload/DecodePayload translate to and from a concrete struct.
type Body struct {
	Version    uint32
	Class      MessageClass
	FuseType   FuseRequestType
	NativeType NativeRequestType
	Stats      CallStats
	Payload    RawPayload
}

func mustFit(v interface{}) {
	n := binary.Size(v)
	if n < 0 || n > MaxPayloadSize {
		panic(fmt.Sprintf("wire: payload type %T (%d bytes) exceeds MaxPayloadSize %d", v, n, MaxPayloadSize))
	}
}

func init() {
	// Every struct that EncodePayload/DecodePayload will ever be asked to
	// carry must fit in RawPayload. Checked once at package init rather
	// than rediscovered at the first oversized encode.
	for _, v := range []interface{}{
		&LookupParams{}, &LookupReply{}, &ForgetParams{}, &GetAttrParams{}, &GetAttrReply{},
		&SetAttrParams{}, &SetAttrReply{}, &ReadlinkParams{}, &ReadlinkReply{},
		&MknodParams{}, &MknodReply{}, &MkdirParams{}, &MkdirReply{},
		&UnlinkParams{}, &RmdirParams{}, &SymlinkParams{}, &SymlinkReply{},
		&RenameParams{}, &LinkParams{}, &LinkReply{}, &OpenParams{}, &OpenReply{},
		&ReadParams{}, &ReadReply{}, &WriteParams{}, &WriteReply{},
		&FlushParams{}, &ReleaseParams{}, &FsyncParams{}, &OpendirParams{}, &OpendirReply{},
		&ReaddirParams{}, &ReaddirReply{}, &ReleasedirParams{}, &FsyncdirParams{},
		&SetxattrParams{}, &GetxattrParams{}, &GetxattrReply{}, &ListxattrParams{}, &ListxattrReply{},
		&RemovexattrParams{}, &StatfsParams{}, &StatfsReply{}, &AccessParams{},
		&CreateParams{}, &CreateReply{}, &GetlkParams{}, &GetlkReply{}, &SetlkParams{},
		&BmapParams{}, &BmapReply{}, &IoctlParams{}, &IoctlReply{}, &PollParams{}, &PollReply{},
		&WriteBufParams{}, &WriteBufReply{}, &RetrieveReplyParams{}, &ForgetMultiParams{},
		&FlockParams{}, &FallocateParams{}, &ReaddirplusParams{}, &ReaddirplusReply{},
		&CopyFileRangeParams{}, &CopyFileRangeReply{}, &LseekParams{}, &LseekReply{},
		&TestParams{}, &TestReply{}, &ServerStatParams{}, &ServerStatReply{},
		&NameMapParams{}, &NameMapReply{}, &NameMapReleaseParams{},
		&DirectoryMapParams{}, &DirectoryMapReply{}, &DirectoryMapReleaseParams{},
	} {
		mustFit(v)
	}
}
