package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oqt_service/internal/domain/model"
)

func TestRegistry_Resolve(t *testing.T) {
	reg, _ := newTestRegistry(nil)

	got, err := reg.Resolve(ClassIndicator, "Fake")
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = reg.Resolve(ClassReport, "FakeReport")
	require.NoError(t, err)
	assert.Equal(t, "FakeReport", got.(ReportDefinition).Name)

	_, err = reg.Resolve(ClassIndicator, "fake")
	assert.ErrorIs(t, err, ErrNameResolution, "lookups are case sensitive")

	_, err = reg.Resolve(ClassReport, "Missing")
	assert.ErrorIs(t, err, ErrNameResolution)

	_, err = reg.Resolve("widget", "Fake")
	assert.ErrorIs(t, err, ErrNameResolution)
}

func TestRegistry_NewIndicatorUnknownLayer(t *testing.T) {
	reg, _ := newTestRegistry(nil)

	_, err := reg.NewIndicator("Fake", "nope", testAOI(t), testDeps())
	assert.ErrorIs(t, err, ErrNameResolution)
}

func TestRegistry_Validate(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	assert.NoError(t, reg.Validate())
}

func TestRegistry_ValidateMismatches(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	reg.RegisterIndicator("Unlisted", nil, func(b Base) Indicator { return nil })
	reg.manifest.Indicators["Other"] = model.Metadata{
		Name:              "Other",
		ResultDescription: "${missing}",
		LabelDescription:  labels("Other"),
	}
	reg.RegisterReport(ReportDefinition{
		Name:            "Broken",
		IndicatorLayers: []IndicatorLayer{{Indicator: "Ghost", Layer: "zzz"}},
	})

	err := reg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	msg := err.Error()
	assert.Contains(t, msg, `"Unlisted" is implemented but has no metadata`)
	assert.Contains(t, msg, `placeholder "missing"`)
	assert.Contains(t, msg, `report "Broken" is declared but has no metadata`)
}

func TestRegistry_ValidateReportMembers(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	reg.manifest.Reports["Broken"] = model.Metadata{Name: "Broken", LabelDescription: labels("b")}
	reg.RegisterReport(ReportDefinition{
		Name:            "Broken",
		IndicatorLayers: []IndicatorLayer{{Indicator: "Ghost", Layer: "zzz"}},
	})

	err := reg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown indicator "Ghost"`)
	assert.Contains(t, err.Error(), `unknown layer "zzz"`)
}

func TestRegistry_ValidateMissingImplementation(t *testing.T) {
	reg := NewRegistry(testManifest())
	err := reg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), `"Fake" has metadata but no implementation`)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	assert.Panics(t, func() {
		reg.RegisterIndicator("Fake", nil, nil)
	})
}
