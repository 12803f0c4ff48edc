package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// AudioExtension is the only extension stored in, and served from, the asset tree.
const AudioExtension = ".mp3"

// Directory names under the storage root.
const (
	CacheDirName       = "ttsfiles"
	PermanentDirName   = "ttspermanentfiles"
	HailingDirName     = "hailingpermanentfiles"
	credentialsDirName = "ttsultimategooglecredentials"
	credentialsFile    = "googlecredentials.json"
)

// Filename prefixes that mark user-managed entries.
const (
	PermanentPrefix = "OwnFile_"
	HailingPrefix   = "Hailing_"
)

const invalidCharReplacement = "_"

var (
	// ErrUnknownCategory indicates a category name that maps to no partition.
	ErrUnknownCategory = errors.New("unknown asset category")
	// ErrInvalidFilename indicates a filename that is not a bare .mp3 name.
	ErrInvalidFilename = errors.New("invalid asset filename")
)

// Category selects one of the three partitions under the storage root.
type Category int

// Partitions.
const (
	Cache Category = iota
	Permanent
	Hailing
)

// Categories lists every partition in a stable order.
func Categories() []Category {
	return []Category{Cache, Permanent, Hailing}
}

// ParseCategory converts "cache", "permanent" or "hailing" into a Category.
func ParseCategory(value string) (Category, error) {
	for _, category := range Categories() {
		if strings.EqualFold(strings.TrimSpace(value), category.String()) {
			return category, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, value)
}

func (c Category) String() string {
	switch c {
	case Cache:
		return "cache"
	case Permanent:
		return "permanent"
	case Hailing:
		return "hailing"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Dir is the subdirectory of the storage root that holds the partition.
func (c Category) Dir() string {
	switch c {
	case Permanent:
		return PermanentDirName
	case Hailing:
		return HailingDirName
	default:
		return CacheDirName
	}
}

// Prefix is prepended to every filename stored in the partition.
func (c Category) Prefix() string {
	switch c {
	case Permanent:
		return PermanentPrefix
	case Hailing:
		return HailingPrefix
	default:
		return ""
	}
}

// IsCategoryDir reports whether name is one of the partition directories.
func IsCategoryDir(name string) bool {
	for _, category := range Categories() {
		if category.Dir() == name {
			return true
		}
	}

	return false
}

// known reports whether c is one of Categories().
func (c Category) known() bool {
	return slices.Contains(Categories(), c)
}

// normalize validates a caller-supplied filename and applies the partition prefix.
func (c Category) normalize(filename string) (string, error) {
	if !c.known() {
		return "", fmt.Errorf("%w: %s", ErrUnknownCategory, c)
	}

	name := strings.TrimSpace(filename)

	switch {
	case name == "", name == ".", name == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	case strings.ContainsAny(name, `/\`), name != filepath.Base(name):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, filename)
	case strings.HasPrefix(name, "."):
		return "", fmt.Errorf("%w: %q is hidden", ErrInvalidFilename, filename)
	case filepath.Ext(name) != AudioExtension:
		return "", fmt.Errorf("%w: %q must end in %s", ErrInvalidFilename, filename, AudioExtension)
	}

	if !strings.HasPrefix(name, c.Prefix()) {
		name = c.Prefix() + name
	}

	return name, nil
}

// displayName strips the partition prefix and the audio extension.
func (c Category) displayName(filename string) string {
	return strings.TrimSuffix(strings.TrimPrefix(filename, c.Prefix()), AudioExtension)
}

// owns reports whether a directory entry belongs to the partition listing.
func (c Category) owns(filename string) bool {
	return !strings.HasPrefix(filename, ".") &&
		strings.HasPrefix(filename, c.Prefix()) &&
		filepath.Ext(filename) == AudioExtension
}

// SanitizeName removes or replaces characters that are invalid in most filesystems.
func SanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
		"#", invalidCharReplacement,
		"%", invalidCharReplacement,
		"&", invalidCharReplacement,
	)

	return strings.TrimLeft(replacer.Replace(name), ".")
}
