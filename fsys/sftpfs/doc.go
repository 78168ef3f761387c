// Package sftpfs implements fsys.FS over an SFTP session so that a mirror
// can push a backup to another host. Dial opens an SSH connection with
// public-key authentication and known_hosts verification; New wraps an
// already established *sftp.Client.
package sftpfs
