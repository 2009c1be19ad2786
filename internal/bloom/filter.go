// Package bloom provides the probabilistic key index a frozen table uses to
// answer "is this key definitely absent" without scanning rows.
package bloom

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// BloomFilter answers membership with no false negatives: if a key was
// added, Contains reports true. Filters are filled once while a table
// freezes and only read afterwards, so Add must not race with Contains.
type BloomFilter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a filter with the given number of bits and hash functions.
func New(numBits, numHashes int) *BloomFilter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	numWords := (numBits + 63) / 64
	return &BloomFilter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates sizes a filter for the expected number of distinct keys
// and target false positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *BloomFilter {
	numBits, numHashes := OptimalParameters(expectedItems, targetFPR)
	return New(numBits, numHashes)
}

// OptimalParameters returns m = -n*ln(p)/ln(2)^2 bits and k = (m/n)*ln(2)
// hash functions for n expected items and false positive rate p.
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil((m / n) * math.Ln2))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add inserts an item.
func (bf *BloomFilter) Add(item []byte) {
	h1, h2 := murmur3.Sum128(item)
	for i := uint64(0); i < bf.numHashes; i++ {
		// double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % bf.numBits
		bf.bits[pos/64] |= 1 << (pos % 64)
	}
	bf.count++
}

// AddString inserts a string key.
func (bf *BloomFilter) AddString(key string) {
	bf.Add([]byte(key))
}

// Contains reports whether item might be present. False means definitely absent.
func (bf *BloomFilter) Contains(item []byte) bool {
	h1, h2 := murmur3.Sum128(item)
	for i := uint64(0); i < bf.numHashes; i++ {
		pos := (h1 + i*h2) % bf.numBits
		if bf.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// ContainsString is Contains for string keys.
func (bf *BloomFilter) ContainsString(key string) bool {
	return bf.Contains([]byte(key))
}

// NumBits returns the number of bits in the filter.
func (bf *BloomFilter) NumBits() int {
	return int(bf.numBits)
}

// NumHashes returns the number of hash functions used.
func (bf *BloomFilter) NumHashes() int {
	return int(bf.numHashes)
}

// Count returns the number of Add calls.
func (bf *BloomFilter) Count() uint64 {
	return bf.count
}

// FalsePositiveRate estimates (1 - e^(-k*n/m))^k for the current fill.
func (bf *BloomFilter) FalsePositiveRate() float64 {
	if bf.count == 0 {
		return 0
	}
	k := float64(bf.numHashes)
	n := float64(bf.count)
	m := float64(bf.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
