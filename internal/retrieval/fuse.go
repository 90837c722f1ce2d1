package retrieval

import (
	"sort"
	"strings"

	"github.com/54b3r/shopgenie-go/internal/rag"
)

// Results is the flattened retrieval response. The five slices are parallel:
// index i of each refers to the same product.
type Results struct {
	// Texts holds the stored document text for each hit.
	Texts []string `json:"texts"`

	// IDs holds the product identifier for each hit.
	IDs []string `json:"ids"`

	// Similarities holds the cosine similarity score for each hit.
	Similarities []float32 `json:"similarities"`

	// Names holds the product display name for each hit.
	Names []string `json:"names"`

	// Images holds the stored image reference (data URI or URL) for each hit.
	Images []string `json:"images"`
}

// Len returns the number of hits in the result set.
func (r *Results) Len() int { return len(r.IDs) }

// newResults returns an empty result set with all five slices initialized,
// so an empty response serializes as five empty lists rather than nulls.
func newResults() *Results {
	return &Results{
		Texts:        []string{},
		IDs:          []string{},
		Similarities: []float32{},
		Names:        []string{},
		Images:       []string{},
	}
}

func (r *Results) append(e rag.ScoredEntry) {
	r.Texts = append(r.Texts, e.Text)
	r.IDs = append(r.IDs, e.Meta.ProductID)
	r.Similarities = append(r.Similarities, e.Score)
	r.Names = append(r.Names, e.Meta.Name)
	r.Images = append(r.Images, e.Meta.Image)
}

// Fuse merges per-query result lists into a single ranked result set.
//
// Each input list is first stably sorted by descending score, then the lists
// are interleaved round-robin (first hit of every query, then second hit of
// every query, and so on). Duplicates by product id keep their first
// occurrence. The interleaved order is positional: after the first top-k cut
// the survivors are NOT re-sorted by score, so a strong second query keeps
// its slot in the rotation.
//
// After the positional cut, hits must score strictly above threshold and
// their category must contain one of the allowed substrings
// (case-insensitive). An empty allowed list admits nothing. A final top-k
// cut bounds the output.
func Fuse(lists [][]rag.ScoredEntry, k int, threshold float32, categories []string) *Results {
	interleaved := interleave(lists)
	deduped := dedup(interleaved)
	if k > 0 && len(deduped) > k {
		deduped = deduped[:k]
	}

	out := newResults()
	for _, e := range deduped {
		if !(e.Score > threshold) {
			continue
		}
		if !categoryAllowed(e.Meta.Category, categories) {
			continue
		}
		out.append(e)
		if k > 0 && out.Len() == k {
			break
		}
	}

	return out
}

// interleave round-robins across the lists: position 0 of each list in
// order, then position 1, and so on, skipping exhausted lists. Each list is
// stably sorted descending by score first so ties keep store order.
func interleave(lists [][]rag.ScoredEntry) []rag.ScoredEntry {
	total := 0
	sorted := make([][]rag.ScoredEntry, 0, len(lists))
	for _, list := range lists {
		cp := make([]rag.ScoredEntry, len(list))
		copy(cp, list)
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].Score > cp[j].Score })
		sorted = append(sorted, cp)
		total += len(cp)
	}

	out := make([]rag.ScoredEntry, 0, total)
	for pos := 0; len(out) < total; pos++ {
		for _, list := range sorted {
			if pos < len(list) {
				out = append(out, list[pos])
			}
		}
	}

	return out
}

// dedup drops repeated product ids, keeping the first occurrence.
func dedup(entries []rag.ScoredEntry) []rag.ScoredEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]rag.ScoredEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Meta.ProductID]; ok {
			continue
		}
		seen[e.Meta.ProductID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// categoryAllowed reports whether the product category contains any of the
// allowed substrings, matched case-insensitively. An empty allowed list
// admits nothing.
func categoryAllowed(category string, allowed []string) bool {
	lower := strings.ToLower(category)
	for _, a := range allowed {
		if strings.Contains(lower, strings.ToLower(a)) {
			return true
		}
	}
	return false
}
