package assets

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPurgePolicy indicates a restart policy other than "leave" or "purge".
var ErrUnknownPurgePolicy = errors.New("unknown purge policy")

// PurgePolicy decides what happens to the cache partition at startup.
type PurgePolicy string

// Restart policies.
const (
	LeaveAtRestart PurgePolicy = "leave"
	PurgeAtRestart PurgePolicy = "purge"
)

// ParsePurgePolicy accepts "leave" or "purge"; an empty value means "leave".
func ParsePurgePolicy(value string) (PurgePolicy, error) {
	switch PurgePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", LeaveAtRestart:
		return LeaveAtRestart, nil
	case PurgeAtRestart:
		return PurgeAtRestart, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPurgePolicy, value)
	}
}
