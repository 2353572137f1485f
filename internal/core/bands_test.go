package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oqt_service/internal/domain/model"
)

func TestThresholds_Classify(t *testing.T) {
	bands := Thresholds(0.8, 0.2)
	require.NoError(t, bands.Validate())

	cases := []struct {
		value float64
		want  model.Class
	}{
		{1.5, model.ClassGreen},
		{0.8, model.ClassGreen},
		{0.79, model.ClassYellow},
		{0.2, model.ClassYellow},
		{0.19, model.ClassRed},
		{0, model.ClassRed},
	}
	for _, tc := range cases {
		got, err := bands.Classify(tc.value)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "value %g", tc.value)
	}
}

func TestBands_ClassifyRejects(t *testing.T) {
	bands := Thresholds(0.8, 0.2)

	_, err := bands.Classify(-0.1)
	assert.ErrorIs(t, err, ErrInvariantViolation, "negative values match no band")

	_, err = bands.Classify(math.NaN())
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestBands_Validate(t *testing.T) {
	overlap := Bands{
		{Lower: 0.5, Upper: math.Inf(1), Class: 5},
		{Lower: 0.2, Upper: 0.6, Class: 3},
	}
	assert.ErrorIs(t, overlap.Validate(), ErrConfiguration)

	unordered := Bands{
		{Lower: 0, Upper: 1, Class: 1},
		{Lower: 1, Upper: 2, Class: 5},
	}
	assert.ErrorIs(t, unordered.Validate(), ErrConfiguration)

	empty := Bands{{Lower: 1, Upper: 1, Class: 5}}
	assert.ErrorIs(t, empty.Validate(), ErrConfiguration)

	badClass := Bands{{Lower: 0, Upper: 1, Class: 7}}
	assert.ErrorIs(t, badClass.Validate(), ErrConfiguration)

	assert.ErrorIs(t, Bands{}.Validate(), ErrConfiguration)
}

func TestTemplate(t *testing.T) {
	tmpl, err := NewTemplate("Area ${area} sqkm with $count features.", []string{"area", "count", "unused"})
	require.NoError(t, err)
	assert.Equal(t, []string{"area", "count"}, tmpl.Placeholders())

	out, err := tmpl.Render(map[string]string{"area": Num(12.345, 1), "count": "3"})
	require.NoError(t, err)
	assert.Equal(t, "Area 12.3 sqkm with 3 features.", out)

	_, err = tmpl.Render(map[string]string{"area": "1"})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = NewTemplate("${unknown}", []string{"area"})
	assert.ErrorIs(t, err, ErrConfiguration)
}
