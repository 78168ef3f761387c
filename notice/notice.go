package notice

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	// DigestMessage is the default confirmation printed
	// after a digest is recorded.
	DigestMessage = "SHA-1 hash: {digest}"

	// BackupMessage is the default confirmation printed
	// after a successful mirror.
	BackupMessage = "Backup created successfully!"
)

// Render substitutes {VAR} placeholders in format with
// values from vars. Values other than string and
// []byte are formatted with fmt.Sprint.
func Render(format string, vars map[string]any) string {
	tags := make(map[string]any, len(vars))

	for key, val := range vars {
		switch val.(type) {
		case string, []byte:
			tags[key] = val
		default:
			tags[key] = fmt.Sprint(val)
		}
	}

	return fasttemplate.ExecuteStringStd(
		format, "{", "}", tags,
	)
}

// PathVars returns the placeholders describing file:
// path, dir, base, name (base without extension) and
// ext.
func PathVars(file string) map[string]any {
	base := filepath.Base(file)
	ext := filepath.Ext(base)

	return map[string]any{
		"path": file,
		"dir":  filepath.Dir(file),
		"base": base,
		"name": strings.TrimSuffix(base, ext),
		"ext":  ext,
	}
}

// SidecarPath expands pattern against file. A pattern
// without placeholders is returned unchanged, which is
// how a fixed record path such as "hashs.hash" works.
func SidecarPath(pattern string, file string) string {
	return Render(pattern, PathVars(file))
}
