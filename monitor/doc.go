// Package monitor keeps a set of files under watch.
//
// Baseline records the digest of every watched file in
// its own sidecar and copies the file into a backup
// directory. Scan compares each file with its record
// and, when asked to, restores tampered or deleted
// files from the backup. Watch repeats Scan until its
// context is cancelled.
package monitor
