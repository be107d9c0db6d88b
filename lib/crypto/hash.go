package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

const (
	HashSize = sha256.Size
)

/*
	The node commits to state with sha256 everywhere: transaction fingerprints, block commitments,
	the evm account root and the combined app hash reported to consensus.
*/

// Hasher() returns the global hashing algorithm used
func Hasher() hash.Hash { return sha256.New() }

// Hash() executes the global hashing algorithm on input bytes
func Hash(msg []byte) []byte {
	h := sha256.Sum256(msg)
	return h[:]
}

// HashConcat() hashes the concatenation of the parts without allocating the joined slice
func HashConcat(parts ...[]byte) []byte {
	h := Hasher()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HashString() returns the hex byte version of a hash
func HashString(msg []byte) string { return hex.EncodeToString(Hash(msg)) }

// MerkleRoot() computes a binary merkle root over the hashes of items
// an odd node at any level is paired with itself; no items yields an empty root
func MerkleRoot(items [][]byte) []byte {
	if len(items) == 0 {
		return []byte{}
	}
	level := make([][]byte, len(items))
	for i, item := range items {
		level[i] = Hash(item)
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashConcat(level[i], right))
		}
		level = next
	}
	return level[0]
}
