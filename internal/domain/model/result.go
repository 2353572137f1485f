package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Label is the traffic light verdict of a result.
type Label string

const (
	LabelGreen     Label = "green"
	LabelYellow    Label = "yellow"
	LabelRed       Label = "red"
	LabelUndefined Label = "undefined"
)

// Labels lists every label in order from best to worst.
var Labels = []Label{LabelGreen, LabelYellow, LabelRed, LabelUndefined}

// Class is the ordinal quality class backing a label, 1 (worst) to 5 (best).
type Class int

const (
	ClassMin Class = 1
	ClassMax Class = 5

	ClassRed    Class = 1
	ClassYellow Class = 3
	ClassGreen  Class = 5
)

// Valid reports whether c is inside the defined class range.
func (c Class) Valid() bool {
	return c >= ClassMin && c <= ClassMax
}

// Label maps a class to its label: 4-5 green, 2-3 yellow, 1 red.
func (c Class) Label() Label {
	switch {
	case c >= 4 && c <= ClassMax:
		return LabelGreen
	case c >= 2 && c < 4:
		return LabelYellow
	case c == ClassRed:
		return LabelRed
	default:
		return LabelUndefined
	}
}

// Result is the output of one indicator or report.
// Value and Class are written together through Set and SetUndefined only.
type Result struct {
	value        *float64
	class        *Class
	Description  string
	SVG          *string
	HTML         *string
	TimestampOSM *time.Time
	TimestampOQT time.Time
}

// NewResult returns an undefined result stamped with createdAt.
func NewResult(createdAt time.Time) *Result {
	return &Result{TimestampOQT: createdAt}
}

// Set stores a defined value and class.
func (r *Result) Set(value float64, class Class) error {
	if !class.Valid() {
		return fmt.Errorf("class %d outside [%d, %d]", class, ClassMin, ClassMax)
	}
	r.value = &value
	r.class = &class
	return nil
}

// SetUndefined clears value, class and figure.
func (r *Result) SetUndefined(description string) {
	r.value = nil
	r.class = nil
	r.SVG = nil
	r.Description = description
}

// Value returns the result value, nil while undefined.
func (r *Result) Value() *float64 {
	if r.value == nil {
		return nil
	}
	v := *r.value
	return &v
}

// Class returns the result class, nil while undefined.
func (r *Result) Class() *Class {
	if r.class == nil {
		return nil
	}
	c := *r.class
	return &c
}

// Label derives the label from the class.
func (r *Result) Label() Label {
	if r.class == nil || r.value == nil {
		return LabelUndefined
	}
	return r.class.Label()
}

// Undefined reports whether the result carries no value.
func (r *Result) Undefined() bool {
	return r.Label() == LabelUndefined
}

type resultJSON struct {
	Value        *float64   `json:"value"`
	Label        Label      `json:"label"`
	Class        *Class     `json:"class_"`
	Description  string     `json:"description"`
	SVG          *string    `json:"svg,omitempty"`
	HTML         *string    `json:"html,omitempty"`
	TimestampOSM *time.Time `json:"timestamp_osm"`
	TimestampOQT time.Time  `json:"timestamp_oqt"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Value:        r.value,
		Label:        r.Label(),
		Class:        r.class,
		Description:  r.Description,
		SVG:          r.SVG,
		HTML:         r.HTML,
		TimestampOSM: r.TimestampOSM,
		TimestampOQT: r.TimestampOQT,
	})
}

// UnmarshalJSON restores a stored result. A value without a class, or the
// reverse, is rejected.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if (raw.Value == nil) != (raw.Class == nil) {
		return fmt.Errorf("%w: value and class_ must both be set or both be null", ErrMalformedResult)
	}
	*r = Result{
		Description:  raw.Description,
		SVG:          raw.SVG,
		HTML:         raw.HTML,
		TimestampOSM: raw.TimestampOSM,
		TimestampOQT: raw.TimestampOQT,
	}
	if raw.Value != nil {
		if err := r.Set(*raw.Value, *raw.Class); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResult, err)
		}
	}
	return nil
}
