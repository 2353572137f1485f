package model

// Attribution credits the data sources an indicator relies on.
type Attribution struct {
	Text string `json:"text" yaml:"text"`
	URL  string `json:"url" yaml:"url"`
}

// Metadata is the static description of an indicator or report.
type Metadata struct {
	Name              string           `json:"name" yaml:"name"`
	Description       string           `json:"description" yaml:"description"`
	ResultDescription string           `json:"-" yaml:"result_description"`
	LabelDescription  map[Label]string `json:"-" yaml:"label_description"`
	Attribution       Attribution      `json:"attribution" yaml:"attribution"`
}

// LabelText returns the label specific description suffix.
func (m *Metadata) LabelText(label Label) string {
	if m == nil || m.LabelDescription == nil {
		return ""
	}
	return m.LabelDescription[label]
}

// Layer is a named OSM filter definition the statistics service aggregates over.
type Layer struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"` // elements/count, elements/length, elements/area
	Filter      string `json:"filter" yaml:"filter"`
	RatioFilter string `json:"ratio_filter,omitempty" yaml:"ratio_filter"`
	Overpass    string `json:"-" yaml:"overpass"` // Overpass QL selector, e.g. way["building"]
}

// Dataset is an AOI source table in the geodatabase.
type Dataset struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Raster is a raster dataset stored in the geodatabase.
type Raster struct {
	Name        string `json:"name" yaml:"name"`
	Table       string `json:"table" yaml:"table"`
	Description string `json:"description" yaml:"description"`
}
