package chunking

import (
	"strings"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
)

// Splitter splits extracted text into overlapping, semantically bounded
// chunks. Splitting prefers paragraph boundaries, then sentence boundaries,
// then hard cuts at ChunkSize runes. Boundary separators stay attached to
// the preceding segment, so concatenating all segments reproduces the input
// text exactly; the only duplicated characters are the Overlap-rune prefix
// carried over from the previous chunk.
type Splitter struct {
	ChunkSize int
	Overlap   int
	MinLength int
}

func NewSplitter(chunkSize, overlap, minLength int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	if minLength < 0 || minLength >= chunkSize {
		minLength = 0
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		MinLength: minLength,
	}
}

func (s *Splitter) Split(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= s.ChunkSize {
		return []domain.Chunk{{Index: 0, Content: text}}
	}

	segments := s.mergeShort(s.segment(runes))

	out := make([]domain.Chunk, 0, len(segments))
	prev := ""
	for i, seg := range segments {
		content := string(seg)
		if i > 0 && s.Overlap > 0 {
			content = tailRunes(prev, s.Overlap) + content
		}
		out = append(out, domain.Chunk{Index: i, Content: content})
		prev = content
	}
	return out
}

// segment packs paragraphs greedily up to ChunkSize. An oversized paragraph
// is split on sentence boundaries, an oversized sentence is cut at ChunkSize.
func (s *Splitter) segment(runes []rune) [][]rune {
	var segments [][]rune
	var current []rune
	flush := func() {
		if len(current) > 0 {
			segments = append(segments, current)
			current = nil
		}
	}

	for _, paragraph := range paragraphUnits(runes) {
		if len(paragraph) > s.ChunkSize {
			flush()
			segments = append(segments, s.segmentParagraph(paragraph)...)
			continue
		}
		if len(current)+len(paragraph) > s.ChunkSize {
			flush()
		}
		current = append(current, paragraph...)
	}
	flush()
	return segments
}

func (s *Splitter) segmentParagraph(paragraph []rune) [][]rune {
	var segments [][]rune
	var current []rune
	flush := func() {
		if len(current) > 0 {
			segments = append(segments, current)
			current = nil
		}
	}

	for _, sentence := range sentenceUnits(paragraph) {
		if len(sentence) > s.ChunkSize {
			flush()
			for start := 0; start < len(sentence); start += s.ChunkSize {
				end := start + s.ChunkSize
				if end > len(sentence) {
					end = len(sentence)
				}
				segments = append(segments, sentence[start:end])
			}
			continue
		}
		if len(current)+len(sentence) > s.ChunkSize {
			flush()
		}
		current = append(current, sentence...)
	}
	flush()
	return segments
}

// mergeShort folds segments below MinLength into the following segment to
// avoid near-empty low-information vectors. A trailing short segment merges
// backward since no following segment exists.
func (s *Splitter) mergeShort(segments [][]rune) [][]rune {
	if s.MinLength <= 0 || len(segments) < 2 {
		return segments
	}

	var out [][]rune
	var carry []rune
	for _, seg := range segments {
		if len(carry) > 0 {
			merged := make([]rune, 0, len(carry)+len(seg))
			merged = append(merged, carry...)
			merged = append(merged, seg...)
			seg = merged
			carry = nil
		}
		if len(seg) < s.MinLength {
			carry = seg
			continue
		}
		out = append(out, seg)
	}
	if len(carry) > 0 {
		if len(out) == 0 {
			return [][]rune{carry}
		}
		out[len(out)-1] = append(out[len(out)-1], carry...)
	}
	return out
}

// paragraphUnits splits after runs of blank lines, keeping the separator
// with the preceding unit.
func paragraphUnits(runes []rune) [][]rune {
	var units [][]rune
	start := 0
	for i := 0; i < len(runes); {
		if runes[i] == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			j := i
			for j < len(runes) && runes[j] == '\n' {
				j++
			}
			units = append(units, runes[start:j])
			start, i = j, j
			continue
		}
		i++
	}
	if start < len(runes) {
		units = append(units, runes[start:])
	}
	return units
}

// sentenceUnits splits after terminal punctuation plus any trailing
// whitespace, keeping both with the preceding unit.
func sentenceUnits(runes []rune) [][]rune {
	var units [][]rune
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			j := i + 1
			for j < len(runes) && isSpaceRune(runes[j]) {
				j++
			}
			units = append(units, runes[start:j])
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		units = append(units, runes[start:])
	}
	return units
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
