package sftpfs

import (
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/byte4ever/secure_backup/fsys"
)

// Config holds the settings needed to reach an SFTP
// server.
type Config struct {
	// Host is host or host:port; port 22 is assumed
	// when omitted.
	Host string
	// User is the remote login name.
	User string
	// KeyFile is a PEM private key used for public
	// key authentication.
	KeyFile string
	// KnownHosts is an OpenSSH known_hosts file used
	// to verify the server key.
	KnownHosts string
	// Timeout bounds the TCP connect and handshake.
	Timeout time.Duration
}

// FS is an fsys.FS backed by an SFTP client.
type FS struct {
	client *sftp.Client
	conn   io.Closer
}

var _ fsys.FS = (*FS)(nil)

// New wraps an existing client. Close closes it.
func New(client *sftp.Client) *FS {
	return &FS{client: client}
}

// Dial connects to cfg.Host and starts an SFTP session.
func Dial(cfg Config) (*FS, error) {
	const errCtx = "dialing sftp"

	if cfg.Host == "" {
		return nil, fmt.Errorf("%s: host must be set", errCtx)
	}

	if cfg.User == "" {
		return nil, fmt.Errorf("%s: user must be set", errCtx)
	}

	if cfg.KeyFile == "" {
		return nil, fmt.Errorf(
			"%s: key file must be set", errCtx,
		)
	}

	if cfg.KnownHosts == "" {
		return nil, fmt.Errorf(
			"%s: known hosts file must be set", errCtx,
		)
	}

	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: read key: %w", errCtx, err,
		)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: parse key: %w", errCtx, err,
		)
	}

	hostKeys, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: load known hosts: %w", errCtx, err,
		)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf(
			"%s: connect %s: %w", errCtx, addr, err,
		)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf(
			"%s: start session: %w", errCtx, err,
		)
	}

	return &FS{client: client, conn: conn}, nil
}

// Close ends the SFTP session and the SSH connection
// when Dial created it.
func (f *FS) Close() error {
	err := f.client.Close()

	if f.conn != nil {
		if cerr := f.conn.Close(); err == nil {
			err = cerr
		}
	}

	return err
}

// Open opens name for reading.
func (f *FS) Open(name string) (io.ReadCloser, error) {
	fi, err := f.client.Open(name)
	if err != nil {
		return nil, fsys.Classify("open", name, err)
	}

	return fi, nil
}

// CreateAtomic uploads into a uniquely named sibling of
// name and renames it into place on Commit.
func (f *FS) CreateAtomic(
	name string,
	perm fs.FileMode,
) (fsys.AtomicFile, error) {
	dir, base := path.Split(name)
	tmp := path.Join(
		dir, "."+base+"."+uuid.NewString()+".tmp",
	)

	fi, err := f.client.OpenFile(
		tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY,
	)
	if err != nil {
		return nil, fsys.Classify("create", name, err)
	}

	if err := fi.Chmod(perm); err != nil {
		_ = fi.Close()
		_ = f.client.Remove(tmp)

		return nil, fsys.Classify("chmod", tmp, err)
	}

	return &atomicFile{
		client: f.client,
		file:   fi,
		tmp:    tmp,
		name:   name,
	}, nil
}

// CreateExclusive creates name with O_EXCL. Servers
// report an existing file as a generic failure, so the
// path is probed to tell ErrExist apart.
func (f *FS) CreateExclusive(
	name string,
) (io.WriteCloser, error) {
	fi, err := f.client.OpenFile(
		name, os.O_CREATE|os.O_EXCL|os.O_WRONLY,
	)
	if err != nil {
		if _, statErr := f.client.Lstat(name); statErr == nil {
			return nil, &fsys.Error{
				Op:   "create",
				Path: name,
				Kind: fsys.ErrExist,
				Err:  err,
			}
		}

		return nil, fsys.Classify("create", name, err)
	}

	return fi, nil
}

// Mkdir creates a single remote directory level.
func (f *FS) Mkdir(name string, perm fs.FileMode) error {
	if err := f.client.Mkdir(name); err != nil {
		return fsys.Classify("mkdir", name, err)
	}

	return fsys.Classify(
		"chmod", name, f.client.Chmod(name, perm),
	)
}

// ReadDir lists name. The server decides the order.
func (f *FS) ReadDir(name string) ([]fsys.Entry, error) {
	infos, err := f.client.ReadDir(name)
	if err != nil {
		return nil, fsys.Classify("readdir", name, err)
	}

	entries := make([]fsys.Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, fsys.Entry{
			Name: info.Name(),
			Kind: fsys.KindFromMode(info.Mode()),
		})
	}

	return entries, nil
}

// Stat describes name, following symbolic links.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	info, err := f.client.Stat(name)
	if err != nil {
		return nil, fsys.Classify("stat", name, err)
	}

	return info, nil
}

// Remove deletes name.
func (f *FS) Remove(name string) error {
	return fsys.Classify("remove", name, f.client.Remove(name))
}

// Join joins elements with forward slashes.
func (f *FS) Join(elem ...string) string {
	return path.Join(elem...)
}

type atomicFile struct {
	client *sftp.Client
	file   *sftp.File
	tmp    string
	name   string
	done   bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	n, err := a.file.Write(p)

	return n, fsys.Classify("write", a.name, err)
}

func (a *atomicFile) Commit() error {
	if a.done {
		return fsys.Classify("commit", a.name, fs.ErrClosed)
	}

	a.done = true

	if err := a.file.Close(); err != nil {
		_ = a.client.Remove(a.tmp)

		return fsys.Classify("close", a.name, err)
	}

	if err := a.client.PosixRename(a.tmp, a.name); err != nil {
		_ = a.client.Remove(a.tmp)

		return fsys.Classify("rename", a.name, err)
	}

	return nil
}

func (a *atomicFile) Close() error {
	if a.done {
		return nil
	}

	a.done = true

	err := a.file.Close()
	if rerr := a.client.Remove(a.tmp); err == nil {
		err = rerr
	}

	return fsys.Classify("close", a.name, err)
}
