package digest_test

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // reference implementation
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/integrity/digest"
)

func TestCompute_known_vector_abc(t *testing.T) {
	t.Parallel()

	got, err := digest.Compute(strings.NewReader("abc"), 0)

	require.NoError(t, err)
	assert.Equal(
		t,
		"a9993e364706816aba3e25717850c26c9cd0d89d",
		got.String(),
	)
}

func TestCompute_empty_stream(t *testing.T) {
	t.Parallel()

	got, err := digest.Compute(bytes.NewReader(nil), 0)

	require.NoError(t, err)
	assert.Equal(t, digest.Empty, got)
	assert.Equal(
		t,
		"da39a3ee5e6b4b0d3255bfef95601890afd80709",
		got.String(),
	)
}

func TestCompute_chunk_size_independent(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	data = append(data, "tail"...)

	want := digest.Digest(sha1.Sum(data)) //nolint:gosec // reference

	for _, size := range []int{1, 7, 4096, len(data), len(data) + 1} {
		got, err := digest.Compute(bytes.NewReader(data), size)

		require.NoError(t, err)
		assert.Equal(t, want, got, "chunk size %d", size)
	}
}

func TestCompute_short_reads(t *testing.T) {
	t.Parallel()

	data := []byte("short reads must still fold every byte")
	want := digest.Digest(sha1.Sum(data)) //nolint:gosec // reference

	got, err := digest.Compute(
		iotest.OneByteReader(bytes.NewReader(data)), 0,
	)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Data returned together with io.EOF.
	got, err = digest.Compute(
		iotest.DataErrReader(bytes.NewReader(data)), 5,
	)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompute_read_error_yields_no_digest(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	got, err := digest.Compute(iotest.ErrReader(boom), 0)

	require.ErrorIs(t, err, boom)
	assert.True(t, got.IsZero())
}

func TestComputeFile_hello(t *testing.T) {
	t.Parallel()

	pa := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(pa, []byte("hello"), 0o600))

	got, err := digest.ComputeFile(fsys.OS{}, pa, 0)

	require.NoError(t, err)
	// sha1("hello")
	assert.Equal(
		t,
		"aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
		got.String(),
	)
}

func TestComputeFile_empty_file(t *testing.T) {
	t.Parallel()

	pa := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(pa, nil, 0o600))

	got, err := digest.ComputeFile(fsys.OS{}, pa, 0)

	require.NoError(t, err)
	assert.Equal(t, digest.Empty, got)
}

func TestComputeFile_nonexistent(t *testing.T) {
	t.Parallel()

	got, err := digest.ComputeFile(
		fsys.OS{}, filepath.Join(t.TempDir(), "nope"), 0,
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, fsys.ErrNotFound)
	assert.True(t, got.IsZero())
	assert.Contains(t, err.Error(), "digesting file")
}

func TestComputeFile_directory_is_io_error(t *testing.T) {
	t.Parallel()

	_, err := digest.ComputeFile(fsys.OS{}, t.TempDir(), 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, fsys.ErrIO)
}

func TestDigest_Bytes_is_a_copy(t *testing.T) {
	t.Parallel()

	dg := digest.Empty
	raw := dg.Bytes()
	raw[0] = 0

	assert.Len(t, raw, digest.Size)
	assert.Equal(t, byte(0xda), dg[0])
	assert.Equal(t, byte(0xda), digest.Empty[0])
}

func TestFromBytes(t *testing.T) {
	t.Parallel()

	got, err := digest.FromBytes(digest.Empty.Bytes())
	require.NoError(t, err)
	assert.Equal(t, digest.Empty, got)

	_, err = digest.FromBytes(make([]byte, 19))
	assert.ErrorIs(t, err, digest.ErrLength)

	_, err = digest.FromBytes(make([]byte, 21))
	assert.ErrorIs(t, err, digest.ErrLength)
}

func TestParseHex(t *testing.T) {
	t.Parallel()

	got, err := digest.ParseHex(digest.Empty.String())
	require.NoError(t, err)
	assert.Equal(t, digest.Empty, got)

	_, err = digest.ParseHex("abcd")
	assert.ErrorIs(t, err, digest.ErrLength)

	_, err = digest.ParseHex(strings.Repeat("zz", digest.Size))
	assert.Error(t, err)
}

func TestDigest_text_roundtrip(t *testing.T) {
	t.Parallel()

	txt, err := digest.Empty.MarshalText()
	require.NoError(t, err)

	var dg digest.Digest
	require.NoError(t, dg.UnmarshalText(txt))
	assert.Equal(t, digest.Empty, dg)
}

func TestHasher_streaming_equals_single_write(t *testing.T) {
	t.Parallel()

	aa := digest.NewHasher()
	_, _ = aa.Write([]byte("hello world"))

	bb := digest.NewHasher()
	_, _ = bb.Write([]byte("hello "))
	_, _ = bb.Write([]byte("world"))

	assert.Equal(t, aa.Sum(), bb.Sum())
}

func FuzzCompute(f *testing.F) {
	f.Add([]byte("hello"), 1)
	f.Add([]byte(""), 4096)
	f.Add([]byte("\x00\xff"), 3)

	f.Fuzz(func(t *testing.T, data []byte, chunk int) {
		if chunk > 1<<16 {
			chunk = 1 << 16
		}

		got, err := digest.Compute(bytes.NewReader(data), chunk)

		require.NoError(t, err)
		//nolint:gosec // reference implementation
		assert.Equal(t, digest.Digest(sha1.Sum(data)), got)
	})
}
