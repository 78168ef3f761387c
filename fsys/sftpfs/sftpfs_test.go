package sftpfs_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/secure_backup/fsys"
	"github.com/byte4ever/secure_backup/fsys/sftpfs"
)

// pipeConn joins the read side of one pipe with the
// write side of another.
type pipeConn struct {
	io.Reader
	io.WriteCloser
}

// newTestFS serves the local filesystem over an
// in-process SFTP server and returns a client FS.
func newTestFS(tb testing.TB) *sftpfs.FS {
	tb.Helper()

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	srv, err := sftp.NewServer(pipeConn{c2sR, s2cW})
	require.NoError(tb, err)

	go func() {
		_ = srv.Serve() //nolint:errcheck // ends on close
	}()

	client, err := sftp.NewClientPipe(s2cR, c2sW)
	require.NoError(tb, err)

	fs := sftpfs.New(client)

	tb.Cleanup(func() {
		_ = srv.Close()
		_ = fs.Close()
	})

	return fs
}

func TestFS_CreateAtomic_and_Open(t *testing.T) {
	t.Parallel()

	rfs := newTestFS(t)
	dir := t.TempDir()
	pa := rfs.Join(filepath.ToSlash(dir), "remote.txt")

	af, err := rfs.CreateAtomic(pa, 0o640)
	require.NoError(t, err)

	_, err = af.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, af.Commit())
	require.NoError(t, af.Close())

	rc, err := rfs.Open(pa)
	require.NoError(t, err)

	defer rc.Close() //nolint:errcheck // test

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, left, 1, "no temporary file may remain")
}

func TestFS_CreateAtomic_close_discards(t *testing.T) {
	t.Parallel()

	rfs := newTestFS(t)
	dir := t.TempDir()
	pa := rfs.Join(filepath.ToSlash(dir), "remote.txt")

	af, err := rfs.CreateAtomic(pa, 0o600)
	require.NoError(t, err)

	_, err = af.Write([]byte("discarded"))
	require.NoError(t, err)
	require.NoError(t, af.Close())

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestFS_Open_missing(t *testing.T) {
	t.Parallel()

	rfs := newTestFS(t)

	_, err := rfs.Open(
		rfs.Join(filepath.ToSlash(t.TempDir()), "nope"),
	)

	assert.ErrorIs(t, err, fsys.ErrNotFound)
}

func TestFS_Mkdir_ReadDir_Stat(t *testing.T) {
	t.Parallel()

	rfs := newTestFS(t)
	dir := filepath.ToSlash(t.TempDir())

	sub := rfs.Join(dir, "sub")
	require.NoError(t, rfs.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(filepath.FromSlash(dir), "f.txt"),
		[]byte("x"), 0o600,
	))

	entries, err := rfs.ReadDir(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []fsys.Entry{
		{Name: "sub", Kind: fsys.KindDir},
		{Name: "f.txt", Kind: fsys.KindFile},
	}, entries)

	info, err := rfs.Stat(sub)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, rfs.Remove(sub))

	_, err = rfs.Stat(sub)
	assert.ErrorIs(t, err, fsys.ErrNotFound)
}

func TestFS_CreateExclusive_twice_fails(t *testing.T) {
	t.Parallel()

	rfs := newTestFS(t)
	pa := rfs.Join(filepath.ToSlash(t.TempDir()), "lock")

	wc, err := rfs.CreateExclusive(pa)
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	_, err = rfs.CreateExclusive(pa)
	assert.ErrorIs(t, err, fsys.ErrExist)
}

func TestDial_validates_config(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  sftpfs.Config
		want string
	}{
		{
			name: "missing host",
			cfg:  sftpfs.Config{},
			want: "host must be set",
		},
		{
			name: "missing user",
			cfg:  sftpfs.Config{Host: "h"},
			want: "user must be set",
		},
		{
			name: "missing key",
			cfg:  sftpfs.Config{Host: "h", User: "u"},
			want: "key file must be set",
		},
		{
			name: "missing known hosts",
			cfg: sftpfs.Config{
				Host: "h", User: "u", KeyFile: "k",
			},
			want: "known hosts file must be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := sftpfs.Dial(tt.cfg)

			assert.Nil(t, got)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
