// Package logging builds the slog logger installed by
// the binaries.
package logging
