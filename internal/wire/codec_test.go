package wire

import "testing"

func TestPutGetStringRoundTrip(t *testing.T) {
	var buf [MaxNameLen]byte
	PutString(buf[:], "bar.txt")
	if got := GetString(buf[:]); got != "bar.txt" {
		t.Fatalf("GetString = %q, want %q", got, "bar.txt")
	}
}

func TestPutStringTruncates(t *testing.T) {
	var buf [4]byte
	PutString(buf[:], "abcdef")
	if got := GetString(buf[:]); got != "abcd" {
		t.Fatalf("GetString = %q, want truncated %q", got, "abcd")
	}
}

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	in := &LookupParams{Parent: Handle{1, 2, 3}}
	PutString(in.Name[:], "some-file")

	var raw RawPayload
	if err := EncodePayload(&raw, in); err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	var out LookupParams
	if err := DecodePayload(&raw, &out); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if out.Parent != in.Parent {
		t.Errorf("Parent = %v, want %v", out.Parent, in.Parent)
	}
	if got := GetString(out.Name[:]); got != "some-file" {
		t.Errorf("Name = %q, want %q", got, "some-file")
	}
}

func TestEncodePayloadRejectsOversizedType(t *testing.T) {
	type tooBig struct {
		Data [MaxPayloadSize + 1]byte
	}
	var raw RawPayload
	if err := EncodePayload(&raw, &tooBig{}); err == nil {
		t.Fatal("expected an error encoding an oversized payload")
	}
}
