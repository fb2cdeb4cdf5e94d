package services

import (
	"errors"
	"math"
	"sort"

	"github.com/tbourn/go-support-desk/internal/domain"
)

// FAQMatch is an FAQ entry together with its similarity to a query.
type FAQMatch struct {
	FAQ   domain.FAQ
	Score float64
}

var errDimMismatch = errors.New("embedding dimensions differ")

// cosineSimilarity returns the cosine of the angle between a and b.
// Zero vectors have similarity 0.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errDimMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// topMatches returns at most k entries whose similarity to query is at least
// threshold, best first. Entries without an embedding or with a different
// dimension are skipped.
func topMatches(query []float32, faqs []domain.FAQ, threshold float64, k int) []FAQMatch {
	if len(query) == 0 || k <= 0 {
		return nil
	}
	var out []FAQMatch
	for _, f := range faqs {
		if !f.Searchable() {
			continue
		}
		score, err := cosineSimilarity(query, f.Embedding)
		if err != nil || score < threshold {
			continue
		}
		out = append(out, FAQMatch{FAQ: f, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
