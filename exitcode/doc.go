// Package exitcode maps errors returned by the binaries
// to process exit statuses.
package exitcode
