package sidecar_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/integrity/digest"
	"github.com/byte4ever/secure_backup/integrity/sidecar"
)

// setup writes content into dir/data.bin and returns
// options pointing its record at dir/hashs.hash.
func setup(
	tb testing.TB,
	content string,
) sidecar.Options {
	tb.Helper()

	dir := tb.TempDir()
	pa := filepath.Join(dir, "data.bin")
	require.NoError(tb, os.WriteFile(pa, []byte(content), 0o600))

	return sidecar.Options{
		File:    pa,
		Sidecar: filepath.Join(dir, sidecar.DefaultPath),
	}
}

func TestRecord_writes_raw_bytes(t *testing.T) {
	t.Parallel()

	opts := setup(t, "abc")

	dg, err := sidecar.Record(opts)
	require.NoError(t, err)

	raw, err := os.ReadFile(opts.Path())
	require.NoError(t, err)
	assert.Len(t, raw, digest.Size)
	assert.Equal(t, dg.Bytes(), raw)
	assert.Equal(
		t,
		"a9993e364706816aba3e25717850c26c9cd0d89d",
		dg.String(),
	)
}

func TestRecord_is_idempotent(t *testing.T) {
	t.Parallel()

	opts := setup(t, "unchanged content")

	_, err := sidecar.Record(opts)
	require.NoError(t, err)

	first, err := os.ReadFile(opts.Path())
	require.NoError(t, err)

	_, err = sidecar.Record(opts)
	require.NoError(t, err)

	second, err := os.ReadFile(opts.Path())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecord_overwrites_previous(t *testing.T) {
	t.Parallel()

	opts := setup(t, "v1")

	_, err := sidecar.Record(opts)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(opts.File, []byte("v2"), 0o600))

	dg, err := sidecar.Record(opts)
	require.NoError(t, err)

	stored, err := sidecar.Load(fsys.OS{}, opts.Path())
	require.NoError(t, err)
	assert.Equal(t, dg, stored)
}

func TestRecord_hex_format(t *testing.T) {
	t.Parallel()

	opts := setup(t, "abc")
	opts.Format = sidecar.FormatHex

	_, err := sidecar.Record(opts)
	require.NoError(t, err)

	raw, err := os.ReadFile(opts.Path())
	require.NoError(t, err)
	assert.Equal(
		t,
		"a9993e364706816aba3e25717850c26c9cd0d89d\n",
		string(raw),
	)
}

func TestRecord_nonexistent_file_writes_nothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := sidecar.Options{
		File:    filepath.Join(dir, "missing"),
		Sidecar: filepath.Join(dir, "hashs.hash"),
	}

	_, err := sidecar.Record(opts)

	require.Error(t, err)
	assert.ErrorIs(t, err, fsys.ErrNotFound)

	_, statErr := os.Stat(opts.Path())
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRecord_failure_keeps_previous_record(t *testing.T) {
	t.Parallel()

	opts := setup(t, "original")

	_, err := sidecar.Record(opts)
	require.NoError(t, err)

	before, err := os.ReadFile(opts.Path())
	require.NoError(t, err)

	require.NoError(t, os.Remove(opts.File))

	_, err = sidecar.Record(opts)
	require.Error(t, err)

	after, err := os.ReadFile(opts.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecord_default_path_is_relative(t *testing.T) {
	t.Parallel()

	opts := sidecar.Options{File: "/some/file"}

	assert.Equal(t, "hashs.hash", opts.Path())
}

func TestRecord_path_template(t *testing.T) {
	t.Parallel()

	opts := setup(t, "templated")
	opts.Sidecar = "{path}.sha1"

	_, err := sidecar.Record(opts)
	require.NoError(t, err)

	_, err = os.Stat(opts.File + ".sha1")
	assert.NoError(t, err)
}

func TestLoad_missing_is_no_record(t *testing.T) {
	t.Parallel()

	_, err := sidecar.Load(
		fsys.OS{}, filepath.Join(t.TempDir(), "none"),
	)

	assert.ErrorIs(t, err, sidecar.ErrNoRecord)
	assert.ErrorIs(t, err, fsys.ErrNotFound)
}

func TestLoad_formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content []byte
		wantErr error
	}{
		{
			name:    "raw",
			content: digest.Empty.Bytes(),
		},
		{
			name:    "hex with newline",
			content: []byte(digest.Empty.String() + "\n"),
		},
		{
			name:    "hex with crlf",
			content: []byte(digest.Empty.String() + "\r\n"),
		},
		{
			name:    "empty",
			content: nil,
			wantErr: sidecar.ErrCorrupt,
		},
		{
			name:    "truncated",
			content: digest.Empty.Bytes()[:10],
			wantErr: sidecar.ErrCorrupt,
		},
		{
			name:    "not hex",
			content: []byte(strings.Repeat("g", 40)),
			wantErr: sidecar.ErrCorrupt,
		},
		{
			name:    "too long",
			content: []byte(strings.Repeat("a", 200)),
			wantErr: sidecar.ErrCorrupt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pa := filepath.Join(t.TempDir(), "rec")
			require.NoError(t, os.WriteFile(pa, tt.content, 0o600))

			got, err := sidecar.Load(fsys.OS{}, pa)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, digest.Empty, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	got, err := sidecar.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, sidecar.FormatRaw, got)

	got, err = sidecar.ParseFormat("hex")
	require.NoError(t, err)
	assert.Equal(t, sidecar.FormatHex, got)
	assert.Equal(t, "hex", got.String())

	_, err = sidecar.ParseFormat("base64")
	assert.Error(t, err)
}

func TestCheck_match(t *testing.T) {
	t.Parallel()

	opts := setup(t, "content")

	_, err := sidecar.Record(opts)
	require.NoError(t, err)

	res, err := sidecar.Check(opts)

	require.NoError(t, err)
	assert.Equal(t, sidecar.StatusMatch, res.Status)
	assert.Equal(t, res.Current, res.Stored)
}

func TestCheck_tampered(t *testing.T) {
	t.Parallel()

	opts := setup(t, "content")

	_, err := sidecar.Record(opts)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(opts.File, []byte("tampered"), 0o600))

	res, err := sidecar.Check(opts)

	require.NoError(t, err)
	assert.Equal(t, sidecar.StatusMismatch, res.Status)
	assert.NotEqual(t, res.Current, res.Stored)
}

func TestCheck_does_not_write(t *testing.T) {
	t.Parallel()

	opts := setup(t, "content")

	res, err := sidecar.Check(opts)

	require.NoError(t, err)
	assert.Equal(t, sidecar.StatusNoBaseline, res.Status)
	assert.True(t, res.Stored.IsZero())

	_, statErr := os.Stat(opts.Path())
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestCheck_missing_file(t *testing.T) {
	t.Parallel()

	opts := setup(t, "content")
	require.NoError(t, os.Remove(opts.File))

	_, err := sidecar.Check(opts)

	assert.ErrorIs(t, err, fsys.ErrNotFound)
	assert.Contains(t, err.Error(), "checking digest")
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "match", sidecar.StatusMatch.String())
	assert.Equal(t, "mismatch", sidecar.StatusMismatch.String())
	assert.Equal(t, "no_baseline", sidecar.StatusNoBaseline.String())
}

func FuzzDecode(f *testing.F) {
	f.Add(digest.Empty.Bytes())
	f.Add([]byte(digest.Empty.String()))
	f.Add([]byte(""))
	f.Add([]byte("\x00\xff"))

	f.Fuzz(func(t *testing.T, data []byte) {
		dg, err := sidecar.Decode(data)
		if err != nil {
			assert.ErrorIs(t, err, sidecar.ErrCorrupt)

			return
		}

		// Whatever decodes must re-encode to a record
		// that decodes to the same digest.
		again, err := sidecar.Decode(
			sidecar.Encode(dg, sidecar.FormatRaw),
		)
		require.NoError(t, err)
		assert.Equal(t, dg, again)
	})
}
