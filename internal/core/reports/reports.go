// Package reports declares the fixed report compositions.
package reports

import "oqt_service/internal/core"

var declared = []core.ReportDefinition{
	{
		Name: "MinimalReport",
		IndicatorLayers: []core.IndicatorLayer{
			{Indicator: "Minimal", Layer: "minimal"},
		},
	},
	{
		Name: "SimpleReport",
		IndicatorLayers: []core.IndicatorLayer{
			{Indicator: "MappingSaturation", Layer: "building_count"},
			{Indicator: "GhsPopComparisonBuildings", Layer: "building_count"},
		},
	},
	{
		Name: "BuildingReport",
		IndicatorLayers: []core.IndicatorLayer{
			{Indicator: "MappingSaturation", Layer: "building_count"},
			{Indicator: "Currentness", Layer: "building_count"},
			{Indicator: "TagsRatio", Layer: "building_address"},
			{Indicator: "BuildingCompleteness", Layer: "building_area"},
			{Indicator: "GhsPopComparisonBuildings", Layer: "building_count"},
		},
	},
	{
		Name: "RoadReport",
		IndicatorLayers: []core.IndicatorLayer{
			{Indicator: "MappingSaturation", Layer: "major_roads_length"},
			{Indicator: "GhsPopComparisonRoads", Layer: "major_roads_length"},
		},
	},
}

// Register declares every report on reg.
func Register(reg *core.Registry) {
	for _, def := range declared {
		reg.RegisterReport(def)
	}
}
