// Package filename derives and validates the self-describing names model artifacts
// are stored under: <sanitized-name>-v<version>-<hash>.gguf.
//
// The hash is a short xxHash64 digest of the descriptor's source URL. It is an
// identity tag that detects a stale or mismatched file, not an integrity check:
// it says nothing about the bytes on disk.
package filename

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/glorpus-work/modelkeep/pkg/model"
	"github.com/hashicorp/go-version"
)

const (
	// Ext is the artifact extension.
	Ext = ".gguf"

	// MaxNameLength caps the sanitized display-name prefix.
	MaxNameLength = 48

	// HashLength is the number of hex digits kept from the digest.
	HashLength = 8

	fallbackName = "model"
)

var (
	nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
	namePattern = regexp.MustCompile(`^([a-z0-9]+(?:-[a-z0-9]+)*)-v([0-9A-Za-z.+~\-]+)-([0-9a-f]{8})\.gguf$`)
)

// Parts are the components of a well-formed versioned filename.
type Parts struct {
	NamePrefix string
	Version    string
	Hash       string
}

// Hash returns the identity digest of a source URL. It tells artifacts apart and
// is not an integrity check of the downloaded bytes.
func Hash(sourceURL string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(sourceURL))[:HashLength]
}

// Sanitize lowercases name, collapses every run of non-alphanumerics into a single
// '-', trims separators and caps the length.
func Sanitize(name string) string {
	s := nonAlnumRun.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxNameLength {
		s = strings.TrimRight(s[:MaxNameLength], "-")
	}
	if s == "" {
		return fallbackName
	}
	return s
}

// Derive computes the filename for descriptor d at catalog version v. Only versions
// accepted by ValidateVersion read back unchanged through Parse.
func Derive(d *model.Descriptor, v string) string {
	return Sanitize(d.Name) + "-v" + v + "-" + Hash(d.SourceURL) + Ext
}

// Parse splits a versioned filename into its parts. Any deviation from the format,
// including a version that does not parse, reports false.
func Parse(name string) (Parts, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Parts{}, false
	}
	if _, err := version.NewVersion(m[2]); err != nil {
		return Parts{}, false
	}
	return Parts{NamePrefix: m[1], Version: m[2], Hash: m[3]}, true
}

// ValidateVersion checks that v is a well-formed version that survives a trip through
// a filename. A version containing "-v" would be split at the wrong separator, so it
// is refused even though go-version accepts it.
func ValidateVersion(v string) error {
	if _, err := version.NewVersion(v); err != nil {
		return err
	}
	sample := fallbackName + "-v" + v + "-" + strings.Repeat("0", HashLength) + Ext
	if parts, ok := Parse(sample); !ok || parts.Version != v {
		return fmt.Errorf("version %q cannot be encoded in a filename", v)
	}
	return nil
}

// IsValid reports whether name was derived for d at version v. The version must
// match exactly, so a catalog version bump invalidates every stored name even when
// the source URL is unchanged.
func IsValid(name string, d *model.Descriptor, v string) bool {
	if d == nil {
		return false
	}
	parts, ok := Parse(name)
	if !ok {
		return false
	}
	return parts.Version == v && parts.Hash == Hash(d.SourceURL)
}
