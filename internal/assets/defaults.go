package assets

import (
	"embed"
	"io/fs"
)

//go:embed defaults
var bundled embed.FS

// DefaultFiles returns the files seeded into the permanent and hailing
// partitions, laid out like the storage root. It returns nil, which disables
// seeding, only if the embedded tree is missing.
func DefaultFiles() fs.FS {
	sub, err := fs.Sub(bundled, "defaults")
	if err != nil {
		return nil
	}

	return sub
}
