// Package gitlib wraps libgit2 with the git surface the rewrite engine
// consumes: oldest-first history scans, branch references, commit and tree
// writing, and structural integrity checks.
package gitlib

import (
	"encoding/hex"
	"errors"

	git2go "github.com/libgit2/git2go/v34"
)

// HashHexSize is the length of a hex-encoded SHA-1 hash.
const HashHexSize = 40

// ErrInvalidHash is returned when a string is not a valid hex commit hash.
var ErrInvalidHash = errors.New("invalid commit hash")

// ParseOid converts a hex hash string to a libgit2 Oid.
func ParseOid(hash string) (*git2go.Oid, error) {
	if len(hash) != HashHexSize {
		return nil, ErrInvalidHash
	}

	raw, err := hex.DecodeString(hash)
	if err != nil {
		return nil, ErrInvalidHash
	}

	oid := new(git2go.Oid)
	copy(oid[:], raw)

	return oid, nil
}

// OidString returns the hex representation of an Oid, or "" for nil.
func OidString(oid *git2go.Oid) string {
	if oid == nil {
		return ""
	}

	return oid.String()
}
