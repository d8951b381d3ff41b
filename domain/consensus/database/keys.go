package database

import "github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"

// Bucket is a named key prefix, mirroring the teacher's
// infrastructure/db/database.MakeBucket pattern, and matching the logical
// keyspace prefixes enumerated in spec.md §6.
type Bucket []byte

// MakeBucket returns a Bucket rooted at the given prefix.
func MakeBucket(prefix []byte) Bucket {
	return Bucket(append([]byte{}, prefix...))
}

// Key concatenates the bucket prefix with a raw suffix.
func (b Bucket) Key(suffix []byte) []byte {
	key := make([]byte, len(b)+len(suffix))
	copy(key, b)
	copy(key[len(b):], suffix)
	return key
}

// HashKey concatenates the bucket prefix with a hash suffix.
func (b Bucket) HashKey(hash *externalapi.DomainHash) []byte {
	return b.Key(hash[:])
}

var (
	BucketHeaders             = MakeBucket([]byte("headers"))
	BucketGhostdag            = MakeBucket([]byte("ghostdag"))
	BucketGhostdagTrusted     = MakeBucket([]byte("ghostdag-trusted"))
	BucketRelationsParents    = MakeBucket([]byte("relations-parents"))
	BucketRelationsChildren   = MakeBucket([]byte("relations-children"))
	BucketReachability        = MakeBucket([]byte("reachability"))
	BucketReachabilityRoot    = MakeBucket([]byte("reachability-root"))
	BucketStatus              = MakeBucket([]byte("status"))
	BucketSelectedChainByIdx  = MakeBucket([]byte("selected-chain-by-index"))
	BucketSelectedChainByHash = MakeBucket([]byte("selected-chain-by-hash"))
	BucketVirtualState        = MakeBucket([]byte("virtual-state"))
	BucketBodyTips            = MakeBucket([]byte("body-tips"))
	BucketPruning             = MakeBucket([]byte("pruning"))
	BucketBlocks              = MakeBucket([]byte("blocks"))
)
