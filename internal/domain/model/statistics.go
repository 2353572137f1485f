package model

import "time"

// QueryOptions selects the aggregation variant of a statistics query.
type QueryOptions struct {
	GroupByBoundary bool
	Ratio           bool
	// LatestContributions counts, per interval of Time, the features whose
	// latest edit falls into that interval instead of the features existing
	// at the interval end.
	LatestContributions bool
	// Time is an ISO-8601 timestamp or interval, e.g. "2008-01-01//P1M".
	// Empty means the latest snapshot.
	Time string
}

// Statistics is the answer of the statistics service for one layer and AOI.
// Length values are metres and area values square metres.
type Statistics struct {
	Timestamp *time.Time
	Value     float64
	Value2    float64
	Ratio     float64
	Groups    []GroupStatistics
	Series    []SeriesPoint
}

// GroupStatistics is the value of one AOI feature in a grouped query.
type GroupStatistics struct {
	ID        string
	Value     float64
	Timestamp *time.Time
}

// SeriesPoint is one step of a time series.
type SeriesPoint struct {
	Timestamp time.Time
	Value     float64
}

// ZonalRequest selects the statistics of a raster zonal query. Categorical
// requests count pixels per class, keyed by CategoryMap names.
type ZonalRequest struct {
	Stats       []string
	Categorical bool
	CategoryMap map[int]string
}

// Figure describes a chart independent of the output format.
type Figure struct {
	Title   string
	XLabel  string
	YLabel  string
	Lines   []FigureLine
	Bands   []FigureBand
	Points  []FigurePoint
	Bars    []FigureBar
	Markers []FigureMarker
}

type FigureLine struct {
	Name   string
	X      []float64
	Y      []float64
	Dashed bool
}

// FigureBand shades the horizontal range [Lower, Upper) in the label colour.
type FigureBand struct {
	Lower float64
	Upper float64
	Label Label
}

type FigurePoint struct {
	Name string
	X    float64
	Y    float64
}

// FigureBar is one histogram bin covering [X0, X1).
type FigureBar struct {
	X0     float64
	X1     float64
	Height float64
	Label  Label
}

// FigureMarker is a vertical line at X.
type FigureMarker struct {
	Name string
	X    float64
}
