package sidecar

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/integrity/digest"
	"github.com/byte4ever/secure_backup/notice"
)

// DefaultPath is the record location used when none is
// configured, relative to the working directory.
const DefaultPath = "hashs.hash"

var (
	// ErrNoRecord reports a missing sidecar. It is
	// always accompanied by fsys.ErrNotFound.
	ErrNoRecord = errors.New("no digest record")

	// ErrCorrupt reports a sidecar that holds neither
	// raw nor hex digest bytes.
	ErrCorrupt = errors.New("corrupt digest record")
)

// Format selects the on-disk encoding of a record.
type Format int

const (
	// FormatRaw stores the 20 digest bytes, nothing
	// else.
	FormatRaw Format = iota
	// FormatHex stores 40 lowercase hex characters and
	// a newline.
	FormatHex
)

// ParseFormat maps "raw" and "hex" to a Format. The
// empty string is FormatRaw.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "raw":
		return FormatRaw, nil
	case "hex":
		return FormatHex, nil
	default:
		return FormatRaw, fmt.Errorf(
			"unknown record format %q", s,
		)
	}
}

// String returns the configuration name of the format.
func (f Format) String() string {
	if f == FormatHex {
		return "hex"
	}

	return "raw"
}

// Options describes one file and its record.
type Options struct {
	// FS holds both the file and its record. Nil
	// means the local filesystem.
	FS fsys.FS

	// File is the path of the content to digest.
	File string

	// Sidecar is the record path pattern; see
	// notice.SidecarPath. Empty means DefaultPath.
	Sidecar string

	// ChunkSize is the read buffer size.
	ChunkSize int

	// Format is the encoding used when writing.
	Format Format
}

// Path returns the expanded record path for o.File.
func (o Options) Path() string {
	pattern := o.Sidecar
	if pattern == "" {
		pattern = DefaultPath
	}

	return notice.SidecarPath(pattern, o.File)
}

func (o Options) fs() fsys.FS {
	if o.FS == nil {
		return fsys.OS{}
	}

	return o.FS
}

// Encode renders dg in format f.
func Encode(dg digest.Digest, f Format) []byte {
	if f == FormatHex {
		return []byte(dg.String() + "\n")
	}

	return dg.Bytes()
}

// Decode parses raw or hex record content.
func Decode(data []byte) (digest.Digest, error) {
	if len(data) == digest.Size {
		return digest.FromBytes(data)
	}

	txt := bytes.TrimSpace(data)
	if len(txt) == 2*digest.Size {
		dg, err := digest.ParseHex(string(txt))
		if err == nil {
			return dg, nil
		}
	}

	return digest.Digest{}, fmt.Errorf(
		"%w: %d bytes", ErrCorrupt, len(data),
	)
}

// Save atomically replaces the record at path with dg.
// A failure leaves any previous record untouched.
func Save(
	fs fsys.FS,
	path string,
	dg digest.Digest,
	f Format,
) (retErr error) {
	const errCtx = "saving digest"

	af, err := fs.CreateAtomic(path, 0o600)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := af.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	if _, err := af.Write(Encode(dg, f)); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := af.Commit(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Load reads the record at path.
func Load(fs fsys.FS, path string) (dg digest.Digest, retErr error) {
	const errCtx = "loading digest"

	rc, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, fsys.ErrNotFound) {
			return digest.Digest{}, fmt.Errorf(
				"%s: %w: %w", errCtx, ErrNoRecord, err,
			)
		}

		return digest.Digest{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := rc.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf(
				"%s: %w", errCtx,
				fsys.Classify("close", path, closeErr),
			)
		}
	}()

	// Hex plus a line ending is the largest valid
	// record; anything longer is corrupt anyway.
	data, err := io.ReadAll(io.LimitReader(rc, 2*digest.Size+8))
	if err != nil {
		return digest.Digest{}, fmt.Errorf(
			"%s: %w", errCtx, fsys.Classify("read", path, err),
		)
	}

	dg, err = Decode(data)
	if err != nil {
		return digest.Digest{}, fmt.Errorf(
			"%s: %s: %w", errCtx, path, err,
		)
	}

	return dg, nil
}

// Record digests o.File and overwrites its record. The
// record is only written once the digest is final, so a
// read failure never touches an existing record.
func Record(o Options) (digest.Digest, error) {
	const errCtx = "recording digest"

	fs := o.fs()

	dg, err := digest.ComputeFile(fs, o.File, o.ChunkSize)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := Save(fs, o.Path(), dg, o.Format); err != nil {
		return digest.Digest{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return dg, nil
}
