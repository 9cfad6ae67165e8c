// Package storepath extracts content hashes from Nix store paths.
//
// Every item in a Nix store is addressed by the leading segment of its
// file name: /nix/store/rgmc4d3spji36n2l1sicm80yq79dpcc2-hello-2.10 has
// hash rgmc4d3spji36n2l1sicm80yq79dpcc2 and name hello-2.10. The hash is
// the first 160 bits of a sha256 digest, base32 encoded to 32 characters.
// This package keeps the encoded form as an opaque fixed-width byte
// array: decoding it would tie us to Nix's exact character set, and the
// encoded form is still small next to the derivations themselves.
package storepath

import (
	"path"

	"github.com/nixcov/nixcov/pkg/errors"
)

// HashLength is the length of the base32-encoded hash prefix of every
// store item name.
const HashLength = 32

// Hash is the fixed-width identity of a store item. Two hashes are equal
// iff their byte sequences are equal.
type Hash [HashLength]byte

// ParseHash extracts the hash from a store item name,
// e.g. "rgmc4d3spji36n2l1sicm80yq79dpcc2-hello-2.10".
func ParseHash(name string) (Hash, error) {
	var h Hash
	if len(name) < HashLength {
		return h, errors.New(errors.ErrCodeInvalidHash, "store name too short for hash: %q", name)
	}
	copy(h[:], name[:HashLength])
	return h, nil
}

// FromPath extracts the hash from the final component of a store path,
// e.g. "/nix/store/rgmc4d3spji36n2l1sicm80yq79dpcc2-hello-2.10".
func FromPath(p string) (Hash, error) {
	return ParseHash(path.Base(p))
}

// Split separates a store item name into its hash and the human-readable
// name after the separator. The name part may be empty.
func Split(name string) (Hash, string, error) {
	h, err := ParseHash(name)
	if err != nil {
		return h, "", err
	}
	if len(name) < HashLength+1 {
		return h, "", errors.New(errors.ErrCodeInvalidHash, "store name has no part after hash: %q", name)
	}
	return h, name[HashLength+1:], nil
}

// SplitPath applies Split to the final component of a store path.
func SplitPath(p string) (Hash, string, error) {
	return Split(path.Base(p))
}

// String returns the base32 hash as a string.
func (h Hash) String() string {
	return string(h[:])
}
