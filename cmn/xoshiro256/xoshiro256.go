// Package xoshiro256 mixes a single uint64 with a 64-bit shift/multiply
// finalizer (the MurmurHash3 fmix64 sequence). It is used as the second
// hash pass in HRW (highest-random-weight) ownership routing: each
// candidate owner XORs its own digest into the resource's hash before
// comparing, which is what gives HRW its "every owner independently computes
// the same winner, no coordination needed" property.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package xoshiro256

// Hash scrambles x into a well-distributed 64-bit value. It is not a
// general-purpose hash function (it takes one word in, one word out) — callers
// are expected to have already reduced their input to a single uint64 digest,
// typically via xxhash.
func Hash(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
