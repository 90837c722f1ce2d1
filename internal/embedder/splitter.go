package embedder

import "strings"

// defaultSeparators is the boundary preference order for the recursive
// splitter: paragraph breaks first, then line breaks, then word boundaries,
// and finally an unconditional character window.
var defaultSeparators = []string{"\n\n", "\n", " "}

// Splitter divides text into chunks of at most ChunkSize characters,
// preferring to cut at natural boundaries. Adjacent window-level chunks
// overlap by Overlap characters so that mean pooling does not lose context
// at chunk edges.
type Splitter struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int
	// Overlap is the number of characters shared between consecutive
	// window-level chunks.
	Overlap int
}

// NewSplitter constructs a Splitter, applying the catalog defaults
// (1000/200) for non-positive values.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split divides text into chunks. Whitespace-only input yields no chunks;
// input within ChunkSize yields a single chunk.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.recurse(text, 0)
}

// recurse splits text at the sepIdx-th separator, merging the resulting
// pieces back into chunks of at most ChunkSize. Pieces that are themselves
// oversized descend to the next finer separator; past the last separator a
// plain overlapping character window is used.
func (s *Splitter) recurse(text string, sepIdx int) []string {
	if len(text) <= s.ChunkSize {
		return []string{text}
	}
	if sepIdx >= len(defaultSeparators) {
		return s.window(text)
	}

	sep := defaultSeparators[sepIdx]
	parts := strings.Split(text, sep)

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, part := range parts {
		if len(part) > s.ChunkSize {
			flush()
			chunks = append(chunks, s.recurse(part, sepIdx+1)...)
			continue
		}

		need := len(part)
		if cur.Len() > 0 {
			need += len(sep)
		}
		if cur.Len()+need > s.ChunkSize {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(part)
	}
	flush()

	return chunks
}

// window slices text into fixed-size chunks with the configured overlap.
func (s *Splitter) window(text string) []string {
	step := s.ChunkSize - s.Overlap
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + s.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
