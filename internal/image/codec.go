// Package image implements the peripheral image-file codec spec.md §6
// calls out as "format not fully specified here; peripheral: linear dump of
// the static heap followed by the well-known-objects table." The format
// here is deliberately minimal: a magic-tagged, semver-gated header around
// an opaque payload, closed with a BLAKE2b-256 checksum trailer — enough to
// detect truncation, bit-rot, and a codec-version mismatch before any byte
// of the payload is trusted, without attempting a full image-file grammar
// (out of scope per spec.md's Non-goals).
package image

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/semver"
)

var magic = [4]byte{'S', 'T', 'V', 'M'}

// CodecVersion is this codec revision's own semver string. Decode rejects
// any image whose embedded version has a different major component —
// durable multi-version migration is a Non-goal; a major bump here means
// the payload grammar changed incompatibly.
const CodecVersion = "v1.0.0"

const checksumSize = 32 // blake2b-256 digest size

// Encode wraps payload in the image header/trailer: magic, a
// length-prefixed version string, a length-prefixed payload, and a
// BLAKE2b-256 checksum over every byte written before it.
func Encode(version string, payload []byte) ([]byte, error) {
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("image: %q is not a valid semver version", version)
	}

	var buf []byte
	buf = append(buf, magic[:]...)
	buf = appendLengthPrefixed(buf, []byte(version))
	buf = appendLengthPrefixed(buf, payload)

	sum := blake2b.Sum256(buf)
	buf = append(buf, sum[:]...)
	return buf, nil
}

// Decode verifies the trailer checksum, then the embedded version against
// CodecVersion, and returns the version string and payload. Checksum
// verification happens before anything else is parsed out of data, so a
// truncated or corrupted image is rejected before its header is trusted
// (spec.md's error taxonomy treats a malformed wire format as a decode-time
// rejection, the same posture internal/bytecode's decoder takes).
func Decode(data []byte) (version string, payload []byte, err error) {
	if len(data) < len(magic)+checksumSize {
		return "", nil, fmt.Errorf("image: truncated, only %d bytes", len(data))
	}

	body := data[:len(data)-checksumSize]
	trailer := data[len(data)-checksumSize:]
	sum := blake2b.Sum256(body)
	if string(sum[:]) != string(trailer) {
		return "", nil, fmt.Errorf("image: checksum mismatch, image is corrupt")
	}

	if string(body[:len(magic)]) != string(magic[:]) {
		return "", nil, fmt.Errorf("image: bad magic %q", body[:len(magic)])
	}
	rest := body[len(magic):]

	versionBytes, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return "", nil, fmt.Errorf("image: reading version: %w", err)
	}
	version = string(versionBytes)

	payload, rest, err = readLengthPrefixed(rest)
	if err != nil {
		return "", nil, fmt.Errorf("image: reading payload: %w", err)
	}
	if len(rest) != 0 {
		return "", nil, fmt.Errorf("image: %d trailing bytes after payload", len(rest))
	}

	if err := CheckVersion(version); err != nil {
		return "", nil, err
	}
	return version, payload, nil
}

// CheckVersion rejects an image whose major version differs from this
// codec's own — the only compatibility rule spec.md's peripheral,
// not-fully-specified image format commits to.
func CheckVersion(version string) error {
	if !semver.IsValid(version) {
		return fmt.Errorf("image: %q is not a valid semver version", version)
	}
	if semver.Major(version) != semver.Major(CodecVersion) {
		return fmt.Errorf("image: incompatible format version %s, this codec supports %s", version, semver.MajorMinor(CodecVersion))
	}
	return nil
}

func appendLengthPrefixed(buf, data []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, data...)
}

func readLengthPrefixed(data []byte) (field, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("truncated field, want %d bytes, have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}
