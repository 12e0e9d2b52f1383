// Package sortkey derives the stable 32-bit key used to produce reproducible
// pseudo-random recipe orderings.
package sortkey

import "hash/fnv"

const separator = "|"

// Derive hashes title, season and region with 32-bit FNV-1a
// (offset 0x811c9dc5, prime 0x01000193).
func Derive(title, season, region string) uint32 {
	h := fnv.New32a()

	// Writes to an fnv hash never fail.
	_, _ = h.Write([]byte(title + separator + season + separator + region))

	return h.Sum32()
}
