// Package sidecar persists a file's digest in a companion record and
// compares fresh digests against it. Record recomputes and overwrites the
// record (a new baseline on every run); Check compares without writing, so a
// change since the last baseline can be detected. Records hold the 20 raw
// digest bytes by default, or 40 hex characters when FormatHex is selected;
// Load accepts either.
package sidecar
