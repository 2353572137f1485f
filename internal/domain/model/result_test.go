package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClass_Label(t *testing.T) {
	cases := []struct {
		class Class
		want  Label
	}{
		{5, LabelGreen},
		{4, LabelGreen},
		{3, LabelYellow},
		{2, LabelYellow},
		{1, LabelRed},
		{0, LabelUndefined},
		{6, LabelUndefined},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.class.Label(), "class %d", tc.class)
	}
}

func TestResult_SetAndUndefined(t *testing.T) {
	r := NewResult(time.Now())
	assert.True(t, r.Undefined(), "a fresh result is undefined")
	assert.Nil(t, r.Value())

	require.NoError(t, r.Set(0.75, ClassYellow))
	assert.Equal(t, LabelYellow, r.Label())
	assert.Equal(t, 0.75, *r.Value())

	svg := "<svg/>"
	r.SVG = &svg
	r.SetUndefined("no data")
	assert.True(t, r.Undefined())
	assert.Nil(t, r.Value())
	assert.Nil(t, r.Class())
	assert.Nil(t, r.SVG, "undefined results carry no figure")
	assert.Equal(t, "no data", r.Description)

	assert.Error(t, r.Set(1, 0))
	assert.True(t, r.Undefined(), "a rejected class leaves the result untouched")
}

func TestResult_ValueIsCopied(t *testing.T) {
	r := NewResult(time.Now())
	require.NoError(t, r.Set(1, ClassGreen))

	*r.Value() = 99
	assert.Equal(t, 1.0, *r.Value())
}

func TestResult_JSON(t *testing.T) {
	created := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewResult(created)
	require.NoError(t, r.Set(0.9, ClassGreen))
	r.Description = "fine"

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "green", fields["label"])
	assert.Equal(t, 5.0, fields["class_"])
	assert.Equal(t, 0.9, fields["value"])
	assert.Nil(t, fields["timestamp_osm"])
	assert.NotContains(t, fields, "svg")

	var decoded Result
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, LabelGreen, decoded.Label())
	assert.True(t, created.Equal(decoded.TimestampOQT))
}

func TestResult_UnmarshalRejectsMismatch(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{"value":0.5,"class_":null,"label":"yellow"}`), &r)
	assert.ErrorIs(t, err, ErrMalformedResult)

	err = json.Unmarshal([]byte(`{"value":0.5,"class_":9}`), &r)
	assert.ErrorIs(t, err, ErrMalformedResult)
}
