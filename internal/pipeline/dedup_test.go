package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateDetector_CallaoExample(t *testing.T) {
	d := NewDuplicateDetector(DefaultDuplicateThreshold)
	b := Incident{
		ID:              "A0000001",
		Title:           "Decomiso de droga en Callao, Perú",
		PublicationDate: "02/06/2024",
		Location:        Location{Country: "Peru", District: "Callao"},
	}
	d.Add(b)

	a := Incident{
		ID:              "A0000002",
		Title:           "Decomiso de droga en Callao",
		PublicationDate: "01/06/2024",
		Location:        Location{Country: "Peru", District: "Callao"},
	}
	dup, of, score := d.Evaluate(a)
	assert.True(t, dup)
	assert.Equal(t, "A0000001", of)
	// 0.4×1.0 + 0.3×0.8 + 0.3×0.9
	assert.InDelta(t, 0.91, score, 1e-9)
}

func TestDuplicateDetector_ThresholdInclusive(t *testing.T) {
	// 場所 1.0 と日付 1.0 だけで 0.7 ちょうどになる組
	orig := Incident{ID: "A0000001", PublicationDate: "10/03/2024", Location: Location{District: "Callao"}}
	cand := Incident{ID: "A0000002", PublicationDate: "10/03/2024", Location: Location{District: "callao"}}
	require.InDelta(t, 0.7, Similarity(cand, orig), 1e-12)

	d := NewDuplicateDetector(0.7)
	d.Add(orig)
	dup, _, _ := d.Evaluate(cand)
	assert.True(t, dup)

	d = NewDuplicateDetector(0.71)
	d.Add(orig)
	dup, of, score := d.Evaluate(cand)
	assert.False(t, dup)
	assert.Equal(t, "", of)
	assert.Equal(t, 0.0, score)
}

func TestDuplicateDetector_FirstMatchWins(t *testing.T) {
	d := NewDuplicateDetector(0.7)
	first := Incident{ID: "A0000001", Title: "incautan droga", PublicationDate: "10/03/2024", Location: Location{District: "Callao"}}
	better := Incident{ID: "A0000002", Title: "incautan cocaína en callao", PublicationDate: "10/03/2024", Location: Location{District: "Callao"}}
	d.Add(first)
	d.Add(better)

	cand := Incident{ID: "A0000003", Title: "incautan cocaína en callao", PublicationDate: "10/03/2024", Location: Location{District: "Callao"}}
	require.Greater(t, Similarity(cand, better), Similarity(cand, first))

	dup, of, _ := d.Evaluate(cand)
	assert.True(t, dup)
	assert.Equal(t, "A0000001", of)
}

func TestDuplicateDetector_DuplicatesNotAdded(t *testing.T) {
	d := NewDuplicateDetector(0.7)
	d.Add(Incident{ID: "A0000001"})
	d.Add(Incident{ID: "A0000002", DuplicateOf: "A0000001", SimilarityScore: 0.9})
	assert.Equal(t, 1, d.Len())
}

func TestDuplicateDetector_EmptyAndInvalidThreshold(t *testing.T) {
	d := NewDuplicateDetector(0)
	assert.Equal(t, DefaultDuplicateThreshold, d.Threshold())
	assert.Equal(t, DefaultDuplicateThreshold, NewDuplicateDetector(1.5).Threshold())
	assert.Equal(t, 1.0, NewDuplicateDetector(1).Threshold())

	dup, of, score := d.Evaluate(Incident{ID: "A0000001", Title: "x"})
	assert.False(t, dup)
	assert.Empty(t, of)
	assert.Zero(t, score)
}

func TestLocationSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b Location
		want float64
	}{
		{"district", Location{District: "Callao", Province: "Lima"}, Location{District: "CALLAO", Province: "Otro"}, 1.0},
		{"province", Location{District: "A", Province: "Lima"}, Location{District: "B", Province: "lima"}, 0.8},
		{"country", Location{Country: "Peru"}, Location{Country: "Peru"}, 0.5},
		{"districts differ and country matches", Location{Country: "Peru", District: "A"}, Location{Country: "Peru", District: "B"}, 0.5},
		{"empty does not match empty", Location{}, Location{}, 0},
		{"nothing", Location{Country: "Peru"}, Location{Country: "Colombia"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocationSimilarity(tt.a, tt.b))
		})
	}
}

// 地区が一致すれば他の階層に関係なく 1.0
func TestLocationSimilarity_DistrictDominates(t *testing.T) {
	for _, other := range []Location{
		{Country: "Peru", Province: "Lima"},
		{Country: "Colombia", Province: "Antioquia"},
		{},
	} {
		a := Location{Country: other.Country, Province: other.Province, District: "Callao"}
		b := Location{Country: "X", Province: "Y", District: "Callao"}
		assert.Equal(t, 1.0, LocationSimilarity(a, b))
	}
}

func TestDateSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"01/06/2024", "01/06/2024", 1.0},
		{"01/06/2024", "02/06/2024", 0.8},
		{"01/06/2024", "04/06/2024", 0.5},
		{"01/06/2024", "05/06/2024", 0},
		{"31/12/2023", "01/01/2024", 0.8},
		{"01/06/2024", "not a date", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, DateSimilarity(tt.a, tt.b))
			assert.Equal(t, tt.want, DateSimilarity(tt.b, tt.a), "symmetric")
		})
	}
}

func TestContentSimilarity(t *testing.T) {
	a := Incident{Title: "Incautan cocaína", Description: "en el puerto del Callao"}
	same := Incident{Title: "INCAUTAN COCAÍNA", Description: "en el puerto del Callao"}
	other := Incident{Title: "Lluvias en Quito", Description: "sin relación"}

	assert.InDelta(t, 1.0, ContentSimilarity(a, same), 1e-9)
	assert.Less(t, ContentSimilarity(a, other), 0.5)
	assert.Equal(t, ContentSimilarity(a, other), ContentSimilarity(other, a))
	assert.Zero(t, ContentSimilarity(Incident{}, Incident{}))
}

func TestSimilarity_Bounds(t *testing.T) {
	a := Incident{Title: "x", PublicationDate: "01/06/2024", Location: Location{District: "Callao"}}
	assert.InDelta(t, 1.0, Similarity(a, a), 1e-9)
	assert.Zero(t, Similarity(Incident{}, Incident{}))
}
