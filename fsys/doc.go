// Package fsys is the filesystem abstraction shared by the digest engine,
// the sidecar store, the directory mirror and the monitor. FS exposes the
// handful of primitives those components need: open-for-read, atomic
// create-and-replace, exclusive create, single-level mkdir, directory
// listing, stat and remove.
//
// OS is the local implementation; the sftpfs sub-package implements FS on
// top of an SFTP session so a mirror can target a remote host.
//
// Every error returned by an FS implementation in this module is classified
// with Classify, so callers can test it against ErrNotFound, ErrPermission,
// ErrExist or ErrIO with errors.Is regardless of the backend.
package fsys
