package image

import (
	"testing"

	"stvm/internal/object"
)

func newTestAlloc() func(class *object.Class, slots int) *object.Ordinary {
	return func(class *object.Class, slots int) *object.Ordinary {
		return &object.Ordinary{Header: object.Header{Class: class, Size: slots}, Slots: make([]object.Ref, slots)}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello, image")
	data, err := Encode("v1.2.3", payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	version, got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if version != "v1.2.3" {
		t.Fatalf("version = %q, want v1.2.3", version)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	data, err := Encode("v1.0.0", []byte("payload"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[len(data)-1] ^= 0xFF // flip a trailer byte

	if _, _, err := Decode(data); err == nil {
		t.Fatalf("Decode: expected checksum error, got nil")
	}
}

func TestDecodeRejectsTruncatedImage(t *testing.T) {
	data, err := Encode("v1.0.0", []byte("payload"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	truncated := data[:len(data)-5]

	if _, _, err := Decode(truncated); err == nil {
		t.Fatalf("Decode: expected truncation error, got nil")
	}
}

func TestCheckVersionRejectsIncompatibleMajor(t *testing.T) {
	if err := CheckVersion("v2.0.0"); err == nil {
		t.Fatalf("CheckVersion(v2.0.0): expected error, CodecVersion is %s", CodecVersion)
	}
	if err := CheckVersion("v1.9.9"); err != nil {
		t.Fatalf("CheckVersion(v1.9.9): unexpected error: %v", err)
	}
}

func TestCheckVersionRejectsInvalidSemver(t *testing.T) {
	if err := CheckVersion("not-a-version"); err == nil {
		t.Fatalf("CheckVersion(not-a-version): expected error")
	}
}

func TestEncodeRootsDecodeRootsRoundTrip(t *testing.T) {
	roots := object.NewRoots(newTestAlloc())

	data, err := EncodeRoots(roots)
	if err != nil {
		t.Fatalf("EncodeRoots: %v", err)
	}

	decoded, err := DecodeRoots(data, newTestAlloc())
	if err != nil {
		t.Fatalf("DecodeRoots: %v", err)
	}
	if decoded.SmallIntClass.Name.String() != "SmallInt" {
		t.Fatalf("decoded SmallIntClass.Name = %q, want SmallInt", decoded.SmallIntClass.Name.String())
	}
}

func TestDecodeRootsRejectsTruncatedClassTable(t *testing.T) {
	roots := object.NewRoots(newTestAlloc())
	data, err := EncodeRoots(roots)
	if err != nil {
		t.Fatalf("EncodeRoots: %v", err)
	}

	_, payload, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// Drop the last class record's trailing bytes to desynchronize the
	// table without touching the count, producing a decode-level error.
	truncatedPayload := payload[:len(payload)-1]
	tamperedData, err := Encode(rootsPayloadVersion, truncatedPayload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := DecodeRoots(tamperedData, newTestAlloc()); err == nil {
		t.Fatalf("DecodeRoots: expected error on desynchronized class table, got nil")
	}
}
