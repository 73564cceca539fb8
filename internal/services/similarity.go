package services

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/temcen/shoprec/pkg/models"
)

// Cosine returns the cosine similarity of a and b restricted to the products
// both vectors rate. Magnitudes are taken over that shared set only, so two
// users agreeing on a small overlap score high. The result is in [0, 1] and
// is 0 when nothing is shared.
func Cosine(a, b models.RatingVector) float64 {
	shared := make([]string, 0)
	for id := range a {
		if _, ok := b[id]; ok {
			shared = append(shared, id)
		}
	}
	if len(shared) == 0 {
		return 0
	}
	// Fixed order keeps the float sums identical for (a, b) and (b, a).
	sort.Strings(shared)

	va := make([]float64, len(shared))
	vb := make([]float64, len(shared))
	for i, id := range shared {
		va[i] = a[id]
		vb[i] = b[id]
	}

	na := floats.Norm(va, 2)
	nb := floats.Norm(vb, 2)
	if na == 0 || nb == 0 {
		return 0
	}

	sim := floats.Dot(va, vb) / (na * nb)
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}
