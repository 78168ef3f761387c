// Package mirror copies the top-level entries of a source directory into a
// destination directory, creating the destination (one level) when it is
// missing. Subdirectories are never descended into; the Directories policy
// decides whether they are skipped or reported as failures. The OnError
// policy decides whether a failing entry stops the run or whether every
// entry is attempted and the failures are reported together.
//
// Each file is written to a temporary sibling and renamed into place, so a
// destination file is either the old content or the complete new content.
// Nothing is rolled back across entries and nothing is ever deleted.
//
// The main entry point is Mirror, which accepts a Config struct; CopyFile is
// the single-file primitive shared with the monitor package.
package mirror
