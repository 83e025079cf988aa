package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// Domain-specific hash types
type (
	EntryHash  Hash
	MerkleRoot Hash
	LeafHash   Hash
)

// Constructors
func NewEntryHash(data []byte) EntryHash   { return EntryHash(NewHash(data)) }
func NewMerkleRoot(data []byte) MerkleRoot { return MerkleRoot(NewHash(data)) }
func NewLeafHash(data []byte) LeafHash     { return LeafHash(NewHash(data)) }

// String conversions
func (h EntryHash) String() string  { return Hash(h).String() }
func (h MerkleRoot) String() string { return Hash(h).String() }
func (h LeafHash) String() string   { return Hash(h).String() }

// IsEmpty checks
func (h EntryHash) IsEmpty() bool  { return Hash(h).IsEmpty() }
func (h MerkleRoot) IsEmpty() bool { return Hash(h).IsEmpty() }
