// Package similarity provides the fuzzy string comparison used to decide
// whether two records describe the same thing.
package similarity

import (
	"sort"
	"strings"
)

const (
	// ExactThreshold is the title ratio treated as equal titles.
	ExactThreshold = 0.95
	// FuzzyThreshold applies to names, locations, times and the weighted score.
	FuzzyThreshold = 0.8
	// SemanticThreshold applies to descriptions.
	SemanticThreshold = 0.7
)

// popularMinLen is the sequence length from which frequent runes stop
// seeding matching blocks.
const popularMinLen = 200

// Ratio returns a similarity in [0, 1] of a and b, compared case-insensitively.
//
// The value is 2*M/T where T is the total number of runes and M the number of
// runes in the matching blocks found by recursively taking the longest common
// block and repeating on both sides of it. Ratio returns 0 when either input
// is empty.
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	m := newMatcher(ra, rb)
	return float64(2*m.matches()) / float64(total)
}

// ContainsFold reports whether needle is a substring of haystack, ignoring case.
// An empty needle or haystack never matches.
func ContainsFold(haystack, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// EqualFold reports whether a and b are non-empty and equal ignoring case.
func EqualFold(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.ToLower(a) == strings.ToLower(b)
}

type block struct {
	i, j, size int
}

type matcher struct {
	a, b []rune
	b2j  map[rune][]int
}

func newMatcher(a, b []rune) *matcher {
	b2j := make(map[rune][]int)
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	if n := len(b); n >= popularMinLen {
		limit := n/100 + 1
		for r, idxs := range b2j {
			if len(idxs) > limit {
				delete(b2j, r)
			}
		}
	}

	return &matcher{a: a, b: b, b2j: b2j}
}

func (m *matcher) longest(alo, ahi, blo, bhi int) block {
	besti, bestj, bestsize := alo, blo, 0

	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}

	// popular runes never seed a block but may still extend one
	for besti > alo && bestj > blo && m.a[besti-1] == m.b[bestj-1] {
		besti, bestj, bestsize = besti-1, bestj-1, bestsize+1
	}
	for besti+bestsize < ahi && bestj+bestsize < bhi && m.a[besti+bestsize] == m.b[bestj+bestsize] {
		bestsize++
	}

	return block{i: besti, j: bestj, size: bestsize}
}

func (m *matcher) blocks() []block {
	type span struct{ alo, ahi, blo, bhi int }

	queue := []span{{0, len(m.a), 0, len(m.b)}}
	var out []block
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		b := m.longest(s.alo, s.ahi, s.blo, s.bhi)
		if b.size == 0 {
			continue
		}
		out = append(out, b)
		if s.alo < b.i && s.blo < b.j {
			queue = append(queue, span{s.alo, b.i, s.blo, b.j})
		}
		if b.i+b.size < s.ahi && b.j+b.size < s.bhi {
			queue = append(queue, span{b.i + b.size, s.ahi, b.j + b.size, s.bhi})
		}
	}

	sort.Slice(out, func(x, y int) bool {
		if out[x].i != out[y].i {
			return out[x].i < out[y].i
		}
		return out[x].j < out[y].j
	})
	return out
}

func (m *matcher) matches() int {
	n := 0
	for _, b := range m.blocks() {
		n += b.size
	}
	return n
}
