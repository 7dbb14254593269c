// Package pathcheck turns caller-supplied path strings into canonical,
// policy-compliant absolute paths before anything is interpolated into a
// hashcat invocation. Every rejection carries a machine-readable reason
// code so callers and audit logs can branch without string matching.
package pathcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Reason is a machine-readable rejection code.
type Reason string

const (
	ReasonEmptyPath         Reason = "EMPTY_PATH"
	ReasonPathTooLong       Reason = "PATH_TOO_LONG"
	ReasonPathTraversal     Reason = "PATH_TRAVERSAL"
	ReasonNullByte          Reason = "NULL_BYTE_DETECTED"
	ReasonSuspiciousChars   Reason = "SUSPICIOUS_CHARACTERS"
	ReasonPathNotAllowed    Reason = "PATH_NOT_ALLOWED"
	ReasonInvalidExtension  Reason = "INVALID_EXTENSION"
	ReasonFileNotFound      Reason = "FILE_NOT_FOUND"
	ReasonSymlinkNotAllowed Reason = "SYMLINK_NOT_ALLOWED"
	ReasonNotAFile          Reason = "NOT_A_FILE"
)

// MaxPathLength is the default ceiling on input length.
const MaxPathLength = 4096

// suspiciousChars is a denylist of shell metacharacters. Execution never
// goes through a shell, so this is defense in depth for any future code
// path that does.
const suspiciousChars = "<>\"'|*?;&$(){}[]`\\"

// PathError is a typed rejection of a candidate path.
type PathError struct {
	Reason Reason
	Path   string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path rejected (%s): %s", e.Reason, e.Path)
}

// Policy describes what a call site accepts. The zero value applies only
// the universal checks (length, traversal, NUL, metacharacters).
type Policy struct {
	// AllowedBaseDirs restricts results to strict descendants of at
	// least one entry. Empty means no base restriction.
	AllowedBaseDirs []string
	// AllowedExtensions is a case-insensitive allowlist including the
	// leading dot (".pcap", ".22000"). Empty means any extension.
	AllowedExtensions []string
	// MustExist requires the path to resolve to an existing entry.
	MustExist bool
	// AllowSymlinks permits symbolic links when MustExist is set.
	AllowSymlinks bool
	// MaxLength overrides MaxPathLength when positive.
	MaxLength int
}

// ValidateFilePath validates and canonicalizes a candidate file path
// against the policy, returning the absolute path or a *PathError.
func ValidateFilePath(path string, policy Policy) (string, error) {
	return validate(path, policy, false)
}

// ValidateDirPath is the directory variant of ValidateFilePath.
func ValidateDirPath(path string, policy Policy) (string, error) {
	return validate(path, policy, true)
}

func validate(path string, policy Policy, wantDir bool) (string, error) {
	maxLen := policy.MaxLength
	if maxLen <= 0 {
		maxLen = MaxPathLength
	}

	if path == "" {
		return "", &PathError{Reason: ReasonEmptyPath, Path: path}
	}
	if len(path) > maxLen {
		return "", &PathError{Reason: ReasonPathTooLong, Path: path}
	}

	if hasTraversalSegment(path) {
		return "", &PathError{Reason: ReasonPathTraversal, Path: path}
	}
	if strings.ContainsRune(path, 0) {
		return "", &PathError{Reason: ReasonNullByte, Path: path}
	}
	if strings.ContainsAny(path, suspiciousChars) {
		return "", &PathError{Reason: ReasonSuspiciousChars, Path: path}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &PathError{Reason: ReasonPathNotAllowed, Path: path}
	}
	// Normalization must not have left a traversal segment behind.
	if hasTraversalSegment(abs) {
		return "", &PathError{Reason: ReasonPathTraversal, Path: path}
	}

	if len(policy.AllowedBaseDirs) > 0 {
		allowed := false
		for _, base := range policy.AllowedBaseDirs {
			absBase, baseErr := filepath.Abs(base)
			if baseErr != nil {
				continue
			}
			if isStrictDescendant(abs, absBase) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", &PathError{Reason: ReasonPathNotAllowed, Path: path}
		}
	}

	if len(policy.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(abs))
		match := false
		for _, candidate := range policy.AllowedExtensions {
			if ext == strings.ToLower(candidate) {
				match = true
				break
			}
		}
		if !match {
			return "", &PathError{Reason: ReasonInvalidExtension, Path: path}
		}
	}

	if policy.MustExist {
		info, statErr := os.Lstat(abs)
		if statErr != nil {
			return "", &PathError{Reason: ReasonFileNotFound, Path: path}
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if !policy.AllowSymlinks {
				return "", &PathError{Reason: ReasonSymlinkNotAllowed, Path: path}
			}
			// Re-stat through the link for the type check below.
			info, statErr = os.Stat(abs)
			if statErr != nil {
				return "", &PathError{Reason: ReasonFileNotFound, Path: path}
			}
		}
		if wantDir {
			if !info.IsDir() {
				return "", &PathError{Reason: ReasonNotAFile, Path: path}
			}
		} else if !info.Mode().IsRegular() {
			return "", &PathError{Reason: ReasonNotAFile, Path: path}
		}
	}

	return abs, nil
}

// SafeJoin joins trusted segments (job ids, fixed file names) under base
// and re-verifies the descendant invariant. It is the only sanctioned way
// to construct workspace and output paths.
func SafeJoin(base string, segments ...string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", &PathError{Reason: ReasonPathNotAllowed, Path: base}
	}

	for _, segment := range segments {
		if segment == "" {
			return "", &PathError{Reason: ReasonEmptyPath, Path: segment}
		}
		if strings.ContainsRune(segment, 0) {
			return "", &PathError{Reason: ReasonNullByte, Path: segment}
		}
		if strings.ContainsAny(segment, suspiciousChars) {
			return "", &PathError{Reason: ReasonSuspiciousChars, Path: segment}
		}
	}

	joined := filepath.Join(append([]string{absBase}, segments...)...)
	if !isStrictDescendant(joined, absBase) {
		return "", &PathError{Reason: ReasonPathTraversal, Path: joined}
	}

	return joined, nil
}

// hasTraversalSegment reports whether any path segment is a literal "..".
func hasTraversalSegment(path string) bool {
	for _, segment := range strings.Split(path, string(os.PathSeparator)) {
		if segment == ".." {
			return true
		}
	}
	return false
}

// isStrictDescendant reports whether path lives below base. The base
// itself does not qualify.
func isStrictDescendant(path, base string) bool {
	if path == base {
		return false
	}
	prefix := base
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}
