package core

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oqt_service/internal/domain/model"
)

type memoryStore struct {
	aois    map[int]*model.AOI
	results map[string][]byte
	saves   int
}

func newMemoryStore(t *testing.T) *memoryStore {
	return &memoryStore{
		aois:    map[int]*model.AOI{1: testAOI(t), 2: testAOI(t)},
		results: map[string][]byte{},
	}
}

func key(dataset string, featureID int, name string) string {
	return fmt.Sprintf("%s/%d/%s", dataset, featureID, name)
}

func (m *memoryStore) GetAOI(_ context.Context, dataset string, featureID int) (*model.AOI, error) {
	aoi, ok := m.aois[featureID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return aoi, nil
}

func (m *memoryStore) SaveResult(_ context.Context, dataset string, featureID int, name string, blob []byte) error {
	m.saves++
	m.results[key(dataset, featureID, name)] = blob
	return nil
}

func (m *memoryStore) GetResult(_ context.Context, dataset string, featureID int, name string) ([]byte, error) {
	blob, ok := m.results[key(dataset, featureID, name)]
	if !ok {
		return nil, model.ErrNotFound
	}
	return blob, nil
}

func (m *memoryStore) FeatureIDs(context.Context, string) ([]int, error) {
	return []int{1, 2}, nil
}

func newTestService(t *testing.T, scripts map[string]behaviour) (*QualityService, *memoryStore, *[]*fakeIndicator) {
	reg, created := newTestRegistry(scripts)
	store := newMemoryStore(t)
	return NewQualityService(reg, testDeps(), store), store, created
}

func featureRef(id int) Target {
	return Target{Dataset: "regions", FeatureID: &id}
}

func TestQualityService_CreateIndicatorWithAOI(t *testing.T) {
	svc, store, _ := newTestService(t, map[string]behaviour{"a": {value: 0.5}})

	view, err := svc.CreateIndicator(context.Background(), IndicatorRequest{
		Name: "Fake", Layer: "a", Target: Target{AOI: testAOI(t)},
	})
	require.NoError(t, err)
	assert.Equal(t, model.LabelYellow, view.Result.Label())
	assert.Equal(t, "a", view.Layer.Name)
	assert.Zero(t, store.saves, "explicit AOIs are not persisted")

	raw, err := view.Feature(FeatureOptions{})
	require.NoError(t, err)
	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "x", fc.Features[0].Properties["name"], "input feature properties are kept")
	assert.Contains(t, fc.Features[0].Properties, "result")
}

func featureProperties(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &fc))
	require.Len(t, fc.Features, 1)
	return fc.Features[0].Properties
}

func TestQualityService_FeatureOptions(t *testing.T) {
	svc, _, _ := newTestService(t, map[string]behaviour{"a": {value: 0.5}, "b": {value: 0.1}})
	ctx := context.Background()

	view, err := svc.CreateIndicator(ctx, IndicatorRequest{Name: "Fake", Layer: "a", Target: Target{AOI: testAOI(t)}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"value": "0.50"}, view.Data)

	raw, err := view.Feature(FeatureOptions{})
	require.NoError(t, err)
	assert.NotContains(t, featureProperties(t, raw), "data")

	raw, err = view.Feature(FeatureOptions{IncludeData: true, Flatten: true})
	require.NoError(t, err)
	props := featureProperties(t, raw)
	assert.Equal(t, "0.50", props["data.value"])
	assert.Equal(t, string(model.LabelYellow), props["result.label"])
	assert.Equal(t, "a", props["layer.name"])
	assert.Equal(t, "x", props["name"])
	assert.NotContains(t, props, "result")

	report, err := svc.CreateReport(ctx, ReportRequest{Name: "FakeReport", Target: Target{AOI: testAOI(t)}})
	require.NoError(t, err)
	raw, err = report.Feature(FeatureOptions{Flatten: true})
	require.NoError(t, err)
	props = featureProperties(t, raw)
	assert.Equal(t, string(model.LabelRed), props["indicators.1.result.label"])
	assert.Equal(t, false, props["blocking_red"])
	assert.NotContains(t, props, "indicators.0.data.value")
}

func TestQualityService_StoredResultReuse(t *testing.T) {
	svc, store, created := newTestService(t, map[string]behaviour{"a": {value: 0.9}, "b": {value: 0.1}})
	ctx := context.Background()
	req := IndicatorRequest{Name: "Fake", Layer: "a", Target: featureRef(1)}

	first, err := svc.CreateIndicator(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	assert.Len(t, *created, 1)

	second, err := svc.CreateIndicator(ctx, req)
	require.NoError(t, err)
	assert.Len(t, *created, 1, "stored result is reused")
	assert.Equal(t, first.Result.Label(), second.Result.Label())
	assert.NotEmpty(t, second.Metadata.LabelDescription, "metadata is refreshed from definitions")

	req.Force = true
	_, err = svc.CreateIndicator(ctx, req)
	require.NoError(t, err)
	assert.Len(t, *created, 2, "force recomputes")
	assert.Equal(t, 2, store.saves)

	_, err = svc.CreateIndicator(ctx, IndicatorRequest{Name: "Fake", Layer: "b", Target: featureRef(1)})
	require.NoError(t, err)
	assert.Len(t, *created, 3, "a stored result of another layer is not reused")
}

func TestQualityService_MalformedStoredResult(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	store.results[key("regions", 1, "Fake")] = []byte(`{"result":{"value":1,"class_":null}}`)

	_, err := svc.CreateIndicator(context.Background(), IndicatorRequest{Name: "Fake", Layer: "a", Target: featureRef(1)})
	assert.ErrorIs(t, err, model.ErrMalformedResult)
}

func TestQualityService_Errors(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateIndicator(ctx, IndicatorRequest{Name: "Nope", Layer: "a", Target: featureRef(1)})
	assert.ErrorIs(t, err, ErrNameResolution)

	_, err = svc.CreateIndicator(ctx, IndicatorRequest{Name: "Fake", Layer: "a", Target: Target{Dataset: "unknown", FeatureID: new(int)}})
	assert.ErrorIs(t, err, ErrNameResolution)

	_, err = svc.CreateIndicator(ctx, IndicatorRequest{Name: "Fake", Layer: "a", Target: featureRef(99)})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.CreateIndicator(ctx, IndicatorRequest{Name: "Fake", Layer: "a"})
	assert.ErrorIs(t, err, model.ErrInvalidAOI)

	_, err = svc.CreateReport(ctx, ReportRequest{Name: "FakeReport", Target: Target{Dataset: "regions"}})
	assert.ErrorIs(t, err, model.ErrInvalidAOI, "dataset without feature id")
}

func TestQualityService_CreateReport(t *testing.T) {
	svc, store, created := newTestService(t, map[string]behaviour{"a": {value: 0.9}, "b": {value: 0.1}})
	ctx := context.Background()

	view, err := svc.CreateReport(ctx, ReportRequest{Name: "FakeReport", Target: featureRef(2)})
	require.NoError(t, err)
	assert.Equal(t, model.LabelYellow, view.Result.Label())
	require.Len(t, view.Indicators, 2)
	assert.Equal(t, model.LabelRed, view.Indicators[1].Result.Label())
	assert.Equal(t, 1, store.saves)

	_, err = svc.CreateReport(ctx, ReportRequest{Name: "FakeReport", Target: featureRef(2)})
	require.NoError(t, err)
	assert.Len(t, *created, 2, "stored report is reused")

	red := true
	view, err = svc.CreateReport(ctx, ReportRequest{Name: "FakeReport", Target: featureRef(2), BlockingRed: &red})
	require.NoError(t, err)
	assert.Len(t, *created, 4, "different blocking flags recompute")
	assert.Equal(t, model.LabelRed, view.Result.Label())
	assert.True(t, view.BlockingRed)

	raw, err := svc.StoredResult(ctx, "regions", 2, "FakeReport")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"blocking_red":true`)
}

func TestQualityService_CreateAllIndicators(t *testing.T) {
	svc, store, _ := newTestService(t, map[string]behaviour{
		"a": {value: 0.9},
		"b": {preprocessErr: errUpstream},
	})

	summary, err := svc.CreateAllIndicators(context.Background(), "regions", false)
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Features: 2, Created: 2, Failed: 2}, summary)
	assert.Equal(t, 2, store.saves)
	assert.Contains(t, store.results, key("regions", 2, "Fake"))

	_, err = svc.CreateAllIndicators(context.Background(), "nope", false)
	assert.ErrorIs(t, err, ErrNameResolution)
}
