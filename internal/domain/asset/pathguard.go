package asset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root is the canonical storage directory every storage key is resolved against.
type Root struct {
	dir string
}

// NewRoot creates dir if needed and pins its canonical (symlink-free) absolute form.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalise storage root: %w", err)
	}
	return &Root{dir: filepath.Clean(canonical)}, nil
}

func (r *Root) Dir() string { return r.dir }

// Resolve maps a relative storage key to an absolute path strictly inside the root.
// Keys are untrusted on every call, including keys read back from the catalog.
func (r *Root) Resolve(key string) (string, error) {
	const op = "asset.Resolve"

	if key == "" || strings.ContainsRune(key, 0) {
		return "", pathSafetyErr(op, key)
	}
	if filepath.IsAbs(key) || filepath.VolumeName(key) != "" ||
		strings.HasPrefix(key, "/") || strings.HasPrefix(key, `\`) {
		return "", pathSafetyErr(op, key)
	}
	for _, seg := range strings.FieldsFunc(key, isSeparator) {
		if seg == ".." {
			return "", pathSafetyErr(op, key)
		}
	}

	candidate := filepath.Join(r.dir, filepath.FromSlash(key))
	// A key must name something below the root, not the root itself.
	if candidate == r.dir {
		return "", pathSafetyErr(op, key)
	}

	resolved, err := canonicalise(candidate)
	if err != nil {
		return "", &Error{Kind: KindPathSafety, Op: op, Detail: fmt.Sprintf("key %q", key), Err: err}
	}
	if !within(r.dir, resolved) {
		return "", pathSafetyErr(op, key)
	}
	return resolved, nil
}

// within reports whether p equals root or sits below it.
func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

var errDanglingLink = errors.New("dangling symlink in path")

// canonicalise resolves symlinks in the longest existing prefix of p and re-appends
// the components that do not exist yet.
func canonicalise(p string) (string, error) {
	var rest []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		// A component that exists but cannot be followed points somewhere we cannot check.
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", errDanglingLink
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append(rest, filepath.Base(cur))
		cur = parent
	}
}

func isSeparator(r rune) bool { return r == '/' || r == '\\' }
