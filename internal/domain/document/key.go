package document

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// PointIDVersion is bumped whenever the point id derivation changes.
// Points carry it in their payload so stale keys can be detected and rebuilt.
const PointIDVersion = 1

// ShortIDLength is the number of hex characters kept from SHA-256(id).
const ShortIDLength = 16

// ContentID returns the SHA-512 hex digest of the file bytes.
func ContentID(content []byte) string {
	sum := sha512.Sum512(content)
	return hex.EncodeToString(sum[:])
}

// ShortID derives the compact identifier of a document id.
func ShortID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:ShortIDLength]
}

// PointID maps a short id to a vector index key.
// The top bit is cleared so the value also fits a signed 64-bit column.
func PointID(shortID string) uint64 {
	return xxhash.Sum64String("v"+strconv.Itoa(PointIDVersion)+":"+shortID) >> 1
}
