// Package lexical builds BM25-style sparse vectors over chunk text. Both
// vector backends use it: the in-process store scores sparse vectors
// directly, the Qdrant client ships them as the collection's named sparse
// vector.
package lexical

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Vector is a sparse term-weight vector. Indices are hashed tokens, sorted
// ascending; Values carry the saturated term-frequency weights.
type Vector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	docK1          = 1.2
	queryK1        = 1.2
	maxSparseTerms = 256
)

func EncodeDocument(text string) Vector {
	termFreq := make(map[uint32]float64, 64)
	appendTermFreq(termFreq, Tokenize(text))
	return termFreqToVector(termFreq, docK1)
}

func EncodeQuery(query string) Vector {
	termFreq := make(map[uint32]float64, 32)
	appendTermFreq(termFreq, Tokenize(query))
	return termFreqToVector(termFreq, queryK1)
}

// Dot scores a document vector against a query vector. Both index slices
// are sorted, so a single merge pass suffices.
func Dot(query, doc Vector) float64 {
	var score float64
	i, j := 0, 0
	for i < len(query.Indices) && j < len(doc.Indices) {
		switch {
		case query.Indices[i] == doc.Indices[j]:
			score += float64(query.Values[i]) * float64(doc.Values[j])
			i++
			j++
		case query.Indices[i] < doc.Indices[j]:
			i++
		default:
			j++
		}
	}
	return score
}

func appendTermFreq(dst map[uint32]float64, tokens []string) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		dst[hashToken(token)]++
	}
}

func termFreqToVector(tf map[uint32]float64, k float64) Vector {
	if len(tf) == 0 {
		return Vector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		tfValue := tf[idx]
		weight := (tfValue * (k + 1.0)) / (tfValue + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}

	return Vector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	// Qdrant sparse indices must be non-zero.
	if sum == 0 {
		return 1
	}
	return sum
}

// Tokenize lowercases the input and splits it into maximal alphanumeric
// runs; everything else is a separator.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
