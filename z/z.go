package z

import (
	"encoding/binary"

	"github.com/dgryski/go-farm"
)

const (
	// idSize is the number of bytes an id occupies at the end of a key built by KeyWithId.
	idSize = 8
)

// Fingerprint hashes a key into the 64 bit value used to track reads, writes and commits. Two keys
// sharing a fingerprint are treated as the same key for conflict detection, which can only cause a
// spurious conflict and never a missed one.
func Fingerprint(key []byte) uint64 {
	return farm.Fingerprint64(key)
}

// KeyWithId generates a new key by appending the big endian encoding of id to prefix. Keys built
// this way sort by prefix first and then numerically by id.
func KeyWithId(prefix []byte, id uint64) []byte {
	out := make([]byte, len(prefix)+idSize)
	copy(out, prefix)
	binary.BigEndian.PutUint64(out[len(prefix):], id)
	return out
}

// ParseId parses the trailing id from a key built by KeyWithId.
func ParseId(key []byte) uint64 {
	if len(key) < idSize {
		return 0
	}

	return binary.BigEndian.Uint64(key[len(key)-idSize:])
}

// ParsePrefix returns the key without its trailing id.
func ParsePrefix(key []byte) []byte {
	if len(key) < idSize {
		return nil
	}

	return key[:len(key)-idSize]
}

// PrefixEnd returns the smallest key that is greater than every key starting with prefix. If no
// such key exists (the prefix is empty or all 0xff) nil is returned, meaning unbounded.
func PrefixEnd(prefix []byte) []byte {
	end := prefix
	for len(end) > 0 && end[len(end)-1] == 0xff {
		end = end[:len(end)-1]
	}
	if len(end) == 0 {
		return nil
	}

	out := make([]byte, len(end))
	copy(out, end)
	out[len(out)-1]++
	return out
}
