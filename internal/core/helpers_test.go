package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oqt_service/internal/definitions"
	"oqt_service/internal/domain/model"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

var fixedNow = time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

func labels(prefix string) map[model.Label]string {
	return map[model.Label]string{
		model.LabelGreen:     prefix + " green",
		model.LabelYellow:    prefix + " yellow",
		model.LabelRed:       prefix + " red",
		model.LabelUndefined: prefix + " undefined",
	}
}

func testManifest() *definitions.Manifest {
	md := func(name string) model.Metadata {
		return model.Metadata{
			Name:              name,
			Description:       name + " description",
			ResultDescription: "Value is ${value}. ",
			LabelDescription:  labels(name),
			Attribution:       model.Attribution{Text: "osm"},
		}
	}
	return &definitions.Manifest{
		Indicators: map[string]model.Metadata{
			"Fake":  md("Fake"),
			"Other": md("Other"),
		},
		Reports: map[string]model.Metadata{
			"FakeReport": {Name: "FakeReport", Description: "d", LabelDescription: labels("report"), Attribution: model.Attribution{Text: "osm"}},
		},
		Layers: map[string]model.Layer{
			"a": {Name: "a", Endpoint: "elements/count", Filter: "building=*"},
			"b": {Name: "b", Endpoint: "elements/count", Filter: "highway=*"},
		},
		Datasets: map[string]model.Dataset{"regions": {Name: "regions"}},
		Rasters:  map[string]model.Raster{"GHS_POP_R2019A": {Name: "GHS_POP_R2019A", Table: "ghs_pop"}},
	}
}

// behaviour scripts what a fakeIndicator does in each step.
type behaviour struct {
	preprocessErr error
	value         float64
	calculateErr  error
	skipSet       bool
	figureMutates bool
	block         bool
}

type fakeIndicator struct {
	Base
	mu         sync.Mutex
	behaviours map[string]behaviour
	calls      []string
}

func (f *fakeIndicator) script() behaviour {
	return f.behaviours[f.Layer().Name]
}

func (f *fakeIndicator) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, step)
}

func (f *fakeIndicator) Preprocess(ctx context.Context) error {
	f.record("preprocess")
	if f.script().block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.script().preprocessErr
}

func (f *fakeIndicator) Calculate() error {
	f.record("calculate")
	b := f.script()
	if b.calculateErr != nil {
		return b.calculateErr
	}
	if b.skipSet {
		return nil
	}
	return f.Classify(b.value, Thresholds(0.8, 0.2), map[string]string{"value": Num(b.value, 2)})
}

func (f *fakeIndicator) CreateFigure() error {
	f.record("figure")
	if f.script().figureMutates {
		return f.Result().Set(0.01, model.ClassRed)
	}
	return f.Figure(model.Figure{Title: f.Name()})
}

type stubRenderer struct{}

func (stubRenderer) Render(fig model.Figure) (string, error) {
	return "<svg>" + fig.Title + "</svg>", nil
}

func testAOI(t *testing.T) *model.AOI {
	t.Helper()
	aoi, err := model.ParseAOI([]byte(`{"type":"Feature","id":1,"properties":{"name":"x"},
		"geometry":{"type":"Polygon","coordinates":[[[8.6,49.3],[8.7,49.3],[8.7,49.4],[8.6,49.3]]]}}`))
	require.NoError(t, err)
	return aoi
}

func testDeps() Deps {
	return Deps{Renderer: stubRenderer{}, Clock: func() time.Time { return fixedNow }}
}

// newTestRegistry registers Fake and Other with the given per layer scripts
// and a FakeReport over Fake/a and Other/b.
func newTestRegistry(behaviours map[string]behaviour) (*Registry, *[]*fakeIndicator) {
	reg := NewRegistry(testManifest())
	var created []*fakeIndicator
	var mu sync.Mutex
	factory := func(base Base) Indicator {
		ind := &fakeIndicator{Base: base, behaviours: behaviours}
		mu.Lock()
		created = append(created, ind)
		mu.Unlock()
		return ind
	}
	reg.RegisterIndicator("Fake", []string{"value"}, factory)
	reg.RegisterIndicator("Other", []string{"value"}, factory)
	reg.RegisterReport(ReportDefinition{
		Name: "FakeReport",
		IndicatorLayers: []IndicatorLayer{
			{Indicator: "Fake", Layer: "a"},
			{Indicator: "Other", Layer: "b"},
		},
	})
	return reg, &created
}

var errUpstream = errors.New("upstream unavailable")
