package digest

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is the record format
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/byte4ever/secure_backup/fsys"
)

const (
	// Size is the digest length in bytes.
	Size = sha1.Size

	// DefaultChunkSize is the read buffer size used
	// when a caller passes zero.
	DefaultChunkSize = 4096
)

// ErrLength reports a byte or hex input of the wrong
// length for a Digest.
var ErrLength = errors.New("invalid digest length")

// Digest is a finalized SHA-1 value.
type Digest [Size]byte

// Empty is the digest of the empty byte string.
var Empty = Digest{
	0xda, 0x39, 0xa3, 0xee, 0x5e, 0x6b, 0x4b, 0x0d,
	0x32, 0x55, 0xbf, 0xef, 0x95, 0x60, 0x18, 0x90,
	0xaf, 0xd8, 0x07, 0x09,
}

// Bytes returns a copy of the 20 raw digest bytes.
func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])

	return out
}

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero value, which
// is never produced by Compute.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText renders the hex form, so digests show up
// readable in JSON output.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the hex form.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}

	*d = parsed

	return nil
}

// FromBytes copies exactly Size raw bytes into a
// Digest.
func FromBytes(raw []byte) (Digest, error) {
	var dg Digest

	if len(raw) != Size {
		return dg, fmt.Errorf(
			"%w: got %d bytes, want %d",
			ErrLength, len(raw), Size,
		)
	}

	copy(dg[:], raw)

	return dg, nil
}

// ParseHex decodes a 40 character hex string.
func ParseHex(s string) (Digest, error) {
	const errCtx = "parsing hex digest"

	if len(s) != 2*Size {
		return Digest{}, fmt.Errorf(
			"%s: %w: got %d chars, want %d",
			errCtx, ErrLength, len(s), 2*Size,
		)
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return FromBytes(raw)
}

// Hasher accumulates a digest incrementally. It is an
// io.Writer, so it can sit behind io.MultiWriter while
// content is copied elsewhere.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns an empty accumulator.
func NewHasher() *Hasher {
	return &Hasher{h: sha1.New()} //nolint:gosec // record format
}

// Write folds p into the running state. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum finalizes the bytes written so far.
func (h *Hasher) Sum() Digest {
	var dg Digest
	copy(dg[:], h.h.Sum(nil))

	return dg
}

// Compute reads r to end of stream in chunks of
// chunkSize bytes (DefaultChunkSize when <= 0) and
// returns the digest of everything read. A read error
// other than io.EOF aborts with no digest.
func Compute(r io.Reader, chunkSize int) (Digest, error) {
	const errCtx = "computing digest"

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	buf := make([]byte, chunkSize)
	hs := NewHasher()

	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = hs.Write(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return Digest{}, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return hs.Sum(), nil
}

// ComputeFile opens path on fsys and digests its whole
// content. The file is closed on every path; a close
// failure is reported only when nothing failed before.
func ComputeFile(
	fs fsys.FS,
	path string,
	chunkSize int,
) (result Digest, retErr error) {
	const errCtx = "digesting file"

	fi, err := fs.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		closeErr := fi.Close()
		if closeErr != nil && retErr == nil {
			result = Digest{}
			retErr = fmt.Errorf(
				"%s: %w", errCtx,
				fsys.Classify("close", path, closeErr),
			)
		}
	}()

	dg, err := Compute(fi, chunkSize)
	if err != nil {
		return Digest{}, fmt.Errorf(
			"%s: %w", errCtx,
			fsys.Classify("read", path, err),
		)
	}

	return dg, nil
}
