package externalapi

import (
	"encoding/hex"
)

// DomainHashSize is the size in bytes of a DomainHash.
const DomainHashSize = 32

// DomainHash is the domain representation of a block hash.
type DomainHash [DomainHashSize]byte

// String returns the hex-encoded representation of the hash, reversed to
// big-endian byte order for human display, matching the daghash.Hash
// convention this type is modeled on.
func (hash DomainHash) String() string {
	for i := 0; i < DomainHashSize/2; i++ {
		hash[i], hash[DomainHashSize-1-i] = hash[DomainHashSize-1-i], hash[i]
	}
	return hex.EncodeToString(hash[:])
}

// Equal returns whether hash equals other.
func (hash *DomainHash) Equal(other *DomainHash) bool {
	if hash == nil || other == nil {
		return hash == other
	}
	return *hash == *other
}

// Less returns whether hash is lexicographically less than other.
func (hash *DomainHash) Less(other *DomainHash) bool {
	for i := 0; i < DomainHashSize; i++ {
		if hash[i] != other[i] {
			return hash[i] < other[i]
		}
	}
	return false
}

// NewDomainHashFromByteSlice returns a new DomainHash copied from the given slice.
func NewDomainHashFromByteSlice(slice []byte) *DomainHash {
	hash := DomainHash{}
	copy(hash[:], slice)
	return &hash
}

// ORIGIN is a sentinel hash representing a virtual point in the past of
// genesis. It never corresponds to a real block and is used to terminate
// selected-parent-chain walks and reachability tree construction.
var ORIGIN = DomainHash{0xff}

// IsOrigin returns whether hash is the ORIGIN sentinel.
func IsOrigin(hash *DomainHash) bool {
	return *hash == ORIGIN
}

// DomainHashSet is an unordered set of hashes.
type DomainHashSet map[DomainHash]struct{}

// NewDomainHashSet creates a new DomainHashSet with the given hashes.
func NewDomainHashSet(hashes ...*DomainHash) DomainHashSet {
	set := make(DomainHashSet, len(hashes))
	for _, hash := range hashes {
		set.Add(hash)
	}
	return set
}

// Add inserts hash into the set.
func (hs DomainHashSet) Add(hash *DomainHash) {
	hs[*hash] = struct{}{}
}

// Contains returns whether hash is a member of the set.
func (hs DomainHashSet) Contains(hash *DomainHash) bool {
	_, ok := hs[*hash]
	return ok
}

// ToSlice returns the set's members as a slice, in unspecified order.
func (hs DomainHashSet) ToSlice() []*DomainHash {
	slice := make([]*DomainHash, 0, len(hs))
	for hash := range hs {
		hashCopy := hash
		slice = append(slice, &hashCopy)
	}
	return slice
}

// HashesEqual returns whether two ordered hash slices are element-wise equal.
func HashesEqual(a, b []*DomainHash) bool {
	if len(a) != len(b) {
		return false
	}
	for i, hash := range a {
		if !hash.Equal(b[i]) {
			return false
		}
	}
	return true
}
