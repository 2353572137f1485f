package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oqt_service/internal/domain/model"
)

func defined(t *testing.T, value float64, class model.Class) *model.Result {
	t.Helper()
	r := model.NewResult(fixedNow)
	require.NoError(t, r.Set(value, class))
	return r
}

func undefined() *model.Result {
	return model.NewResult(fixedNow)
}

// ============================================================================
// AGGREGATION RULES
// ============================================================================

func TestCombineResults(t *testing.T) {
	cases := []struct {
		name              string
		results           []*model.Result
		blockingRed       bool
		blockingUndefined bool
		wantOK            bool
		wantClass         model.Class
		wantValue         float64
	}{
		{
			name:      "mean rounds up to green",
			results:   []*model.Result{defined(t, 1, 5), defined(t, 1, 5), defined(t, 0, 1)},
			wantOK:    true,
			wantClass: 4,
			wantValue: 2.0 / 3.0,
		},
		{
			name:      "tie between 5 and 4 goes to 4",
			results:   []*model.Result{defined(t, 1, 5), defined(t, 0.5, 4)},
			wantOK:    true,
			wantClass: 4,
			wantValue: 0.875,
		},
		{
			name:      "tie between 3 and 2 goes to 2",
			results:   []*model.Result{defined(t, 0.5, 3), defined(t, 0.3, 2)},
			wantOK:    true,
			wantClass: 2,
			wantValue: 0.375,
		},
		{
			name:      "value follows classes not member units",
			results:   []*model.Result{defined(t, 0.003, 3), defined(t, 1, 5)},
			wantOK:    true,
			wantClass: 4,
			wantValue: 0.75,
		},
		{
			name:              "blocking undefined",
			results:           []*model.Result{defined(t, 1, 5), undefined()},
			blockingUndefined: true,
			wantOK:            false,
		},
		{
			name:      "undefined member ignored when not blocking",
			results:   []*model.Result{defined(t, 1, 5), undefined()},
			wantOK:    true,
			wantClass: 5,
			wantValue: 1,
		},
		{
			name:        "blocking red forces worst class",
			results:     []*model.Result{defined(t, 1, 5), defined(t, 1, 5), defined(t, 0, 1)},
			blockingRed: true,
			wantOK:      true,
			wantClass:   1,
			wantValue:   2.0 / 3.0,
		},
		{
			name:        "blocking red without red member",
			results:     []*model.Result{defined(t, 1, 5), defined(t, 0.5, 3)},
			blockingRed: true,
			wantOK:      true,
			wantClass:   4,
			wantValue:   0.75,
		},
		{
			name:              "blocking undefined wins over blocking red",
			results:           []*model.Result{defined(t, 0, 1), undefined()},
			blockingRed:       true,
			blockingUndefined: true,
			wantOK:            false,
		},
		{
			name:    "all undefined",
			results: []*model.Result{undefined(), undefined()},
			wantOK:  false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, class, ok := CombineResults(tc.results, tc.blockingRed, tc.blockingUndefined)
			require.Equal(t, tc.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.wantClass, class)
			assert.InDelta(t, tc.wantValue, value, 1e-9)
		})
	}
}

func TestCombineResults_Labels(t *testing.T) {
	_, class, ok := CombineResults([]*model.Result{defined(t, 1, 5), defined(t, 1, 5), defined(t, 0, 1)}, false, false)
	require.True(t, ok)
	assert.Equal(t, model.LabelGreen, class.Label(), "mean 3.67 rounds to class 4")
}

// ============================================================================
// REPORT RUN
// ============================================================================

func TestReport_Run(t *testing.T) {
	reg, _ := newTestRegistry(map[string]behaviour{
		"a": {value: 0.9},
		"b": {value: 0.1},
	})
	report, err := NewReport(reg, testDeps(), "FakeReport", testAOI(t))
	require.NoError(t, err)

	require.NoError(t, report.Run(context.Background()))

	res := report.Result()
	assert.Equal(t, model.LabelYellow, res.Label(), "mean of 5 and 1 is 3")
	assert.InDelta(t, 0.5, *res.Value(), 1e-9)
	assert.Equal(t, "report yellow", res.Description)
	require.NotNil(t, res.HTML)
	assert.Contains(t, *res.HTML, "<svg>Fake</svg>", "member figures are embedded unescaped")
	assert.Contains(t, *res.HTML, "Other")
	assert.Nil(t, res.SVG)

	members := report.Indicators()
	require.Len(t, members, 2)
	assert.Equal(t, "Fake", members[0].Name())
	assert.Equal(t, "b", members[1].Layer().Name)

	require.NoError(t, report.CombineIndicators())
	assert.Equal(t, model.LabelYellow, report.Result().Label(), "combining again keeps the result")
}

func TestReport_BlockingOverrides(t *testing.T) {
	scripts := map[string]behaviour{
		"a": {value: 0.9},
		"b": {preprocessErr: DataGap("no data")},
	}
	reg, _ := newTestRegistry(scripts)

	report, err := NewReport(reg, testDeps(), "FakeReport", testAOI(t))
	require.NoError(t, err)
	require.NoError(t, report.Run(context.Background()))
	assert.Equal(t, model.LabelGreen, report.Result().Label(), "undefined members are skipped by default")

	report, err = NewReport(reg, testDeps(), "FakeReport", testAOI(t), WithBlockingUndefined(true))
	require.NoError(t, err)
	require.NoError(t, report.Run(context.Background()))
	assert.Equal(t, model.LabelUndefined, report.Result().Label())
	assert.Equal(t, "report undefined", report.Result().Description)

	scripts["b"] = behaviour{value: 0.05}
	report, err = NewReport(reg, testDeps(), "FakeReport", testAOI(t), WithBlockingRed(true))
	require.NoError(t, err)
	require.NoError(t, report.Run(context.Background()))
	assert.Equal(t, model.LabelRed, report.Result().Label())
}

func TestReport_FailureCancelsSiblings(t *testing.T) {
	reg, _ := newTestRegistry(map[string]behaviour{
		"a": {preprocessErr: errUpstream},
		"b": {block: true},
	})
	report, err := NewReport(reg, testDeps(), "FakeReport", testAOI(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- report.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errUpstream)
	case <-time.After(5 * time.Second):
		t.Fatal("report did not cancel the blocked member")
	}
}

func TestNewReport_Unknown(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	_, err := NewReport(reg, testDeps(), "Nope", testAOI(t))
	assert.ErrorIs(t, err, ErrNameResolution)
}
