// Package catbitset encodes and decodes the packed categorical thresholds of
// LightGBM model files.
//
// A categorical split stores the categories that route left as a flat bit
// vector split into 32-bit words. Bit i of word w stands for category
// 32*w+i. Categories beyond the last word are not members and route right.
//
// Example:
//
//	set := catbitset.Decode(catbitset.Words{576})
//	// set == catbitset.Set{6, 9}
package catbitset

import (
	"math"
	"math/bits"
	"slices"

	"github.com/bits-and-blooms/bitset"

	"github.com/YuminosukeSato/forestjit/pkg/errors"
)

// WordBits is the number of categories a single packed word covers.
const WordBits = 32

// Words is the packed form of a categorical threshold.
type Words []uint32

// Set is the decoded form: the left-routed categories in strictly increasing order.
type Set []int

// Decode lists every set bit of words, least significant bit first, words in order.
func Decode(words Words) Set {
	bs := toBitSet(words)
	set := make(Set, 0, bs.Count())
	for i, ok := bs.NextSet(0); ok; i, ok = bs.NextSet(i + 1) {
		set = append(set, int(i))
	}
	return set
}

// Encode packs set into the minimal number of words.
// It fails when set holds a negative category, a category above MaxInt32, or
// is not strictly increasing. Nothing is allocated until set is validated.
func Encode(set Set) (Words, error) {
	if len(set) == 0 {
		return Words{}, nil
	}
	prev := -1
	for i, c := range set {
		if c < 0 {
			return nil, errors.NewMalformedModelErrorf(-1, -1, -1, "cat_threshold",
				"negative category %d at position %d", c, i)
		}
		if c <= prev {
			return nil, errors.NewMalformedModelErrorf(-1, -1, -1, "cat_threshold",
				"categories not strictly increasing at position %d (%d after %d)", i, c, prev)
		}
		if c > math.MaxInt32 {
			return nil, errors.NewMalformedModelErrorf(-1, -1, -1, "cat_threshold",
				"category %d exceeds the representable range", c)
		}
		prev = c
	}

	bs := bitset.New(uint(prev) + 1)
	for _, c := range set {
		bs.Set(uint(c))
	}
	return fromBitSet(bs, prev/WordBits+1), nil
}

// DecodeInts validates raw cat_threshold tokens and converts them to Words.
func DecodeInts(values []int64) (Words, error) {
	words := make(Words, len(values))
	for i, v := range values {
		if v < 0 || v > math.MaxUint32 {
			return nil, errors.NewMalformedModelErrorf(-1, -1, -1, "cat_threshold",
				"word %d out of uint32 range: %d", i, v)
		}
		words[i] = uint32(v)
	}
	return words, nil
}

// Contains reports whether category c routes left. Negative categories and
// categories past the last word are not members.
func (w Words) Contains(c int) bool {
	if c < 0 {
		return false
	}
	idx := c / WordBits
	if idx >= len(w) {
		return false
	}
	return w[idx]&(1<<(uint(c)%WordBits)) != 0
}

// Trim drops trailing all-zero words.
func (w Words) Trim() Words {
	n := len(w)
	for n > 0 && w[n-1] == 0 {
		n--
	}
	return w[:n]
}

// BitLen is the number of categories representable by w.
func (w Words) BitLen() int {
	return len(w) * WordBits
}

// Contains reports whether c is a member, by binary search.
func (s Set) Contains(c int) bool {
	_, found := slices.BinarySearch(s, c)
	return found
}

func toBitSet(words Words) *bitset.BitSet {
	bs := bitset.New(uint(len(words) * WordBits))
	for w, word := range words {
		for word != 0 {
			bit := bits.TrailingZeros32(word)
			bs.Set(uint(w*WordBits + bit))
			word &= word - 1
		}
	}
	return bs
}

func fromBitSet(bs *bitset.BitSet, numWords int) Words {
	words := make(Words, numWords)
	for i, ok := bs.NextSet(0); ok; i, ok = bs.NextSet(i + 1) {
		words[i/WordBits] |= 1 << (i % WordBits)
	}
	return words
}
