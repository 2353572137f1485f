// Package definitions loads the static metadata of indicators, reports,
// layers, datasets and rasters. The default set is embedded in the binary;
// a directory with the same file names can replace it.
package definitions

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"oqt_service/internal/domain/model"
)

//go:embed data/*.yaml
var embedded embed.FS

// ErrInvalidManifest is returned when a definition file is incomplete or
// declares a name twice.
var ErrInvalidManifest = errors.New("invalid manifest")

const (
	indicatorsFile = "indicators.yaml"
	reportsFile    = "reports.yaml"
	layersFile     = "layers.yaml"
	datasetsFile   = "datasets.yaml"
	rastersFile    = "rasters.yaml"
)

// Manifest is the immutable set of known names. It is read once at startup
// and shared read-only afterwards.
type Manifest struct {
	Indicators map[string]model.Metadata
	Reports    map[string]model.Metadata
	Layers     map[string]model.Layer
	Datasets   map[string]model.Dataset
	Rasters    map[string]model.Raster
}

// Load reads the embedded definitions.
func Load() (*Manifest, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// LoadDir reads the definitions from dir.
func LoadDir(dir string) (*Manifest, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS reads the five definition files from the root of fsys.
func LoadFS(fsys fs.FS) (*Manifest, error) {
	var (
		indicators []model.Metadata
		reports    []model.Metadata
		layers     []model.Layer
		datasets   []model.Dataset
		rasters    []model.Raster
	)
	files := []struct {
		name string
		out  any
	}{
		{indicatorsFile, &indicators},
		{reportsFile, &reports},
		{layersFile, &layers},
		{datasetsFile, &datasets},
		{rastersFile, &rasters},
	}
	for _, f := range files {
		if err := decode(fsys, f.name, f.out); err != nil {
			return nil, err
		}
	}

	m := &Manifest{}
	var err error
	if m.Indicators, err = index(indicatorsFile, indicators, func(md model.Metadata) (string, error) {
		return md.Name, validateMetadata(md, true)
	}); err != nil {
		return nil, err
	}
	if m.Reports, err = index(reportsFile, reports, func(md model.Metadata) (string, error) {
		return md.Name, validateMetadata(md, false)
	}); err != nil {
		return nil, err
	}
	if m.Layers, err = index(layersFile, layers, func(l model.Layer) (string, error) {
		if l.Endpoint == "" || l.Filter == "" {
			return l.Name, fmt.Errorf("layer %q needs endpoint and filter", l.Name)
		}
		return l.Name, nil
	}); err != nil {
		return nil, err
	}
	if m.Datasets, err = index(datasetsFile, datasets, func(d model.Dataset) (string, error) {
		return d.Name, nil
	}); err != nil {
		return nil, err
	}
	if m.Rasters, err = index(rastersFile, rasters, func(r model.Raster) (string, error) {
		if r.Table == "" {
			return r.Name, fmt.Errorf("raster %q needs a table", r.Name)
		}
		return r.Name, nil
	}); err != nil {
		return nil, err
	}
	return m, nil
}

func decode(fsys fs.FS, name string, out any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

func index[T any](file string, items []T, check func(T) (string, error)) (map[string]T, error) {
	out := make(map[string]T, len(items))
	for i, item := range items {
		name, err := check(item)
		if name == "" {
			return nil, fmt.Errorf("%w: %s entry %d has no name", ErrInvalidManifest, file, i)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, file, err)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: %s declares %q twice", ErrInvalidManifest, file, name)
		}
		out[name] = item
	}
	return out, nil
}

func validateMetadata(md model.Metadata, needsResult bool) error {
	if md.Description == "" {
		return fmt.Errorf("%q has no description", md.Name)
	}
	if needsResult && md.ResultDescription == "" {
		return fmt.Errorf("%q has no result_description", md.Name)
	}
	if md.Attribution.Text == "" {
		return fmt.Errorf("%q has no attribution", md.Name)
	}
	return nil
}

// Indicator returns the metadata of an indicator.
func (m *Manifest) Indicator(name string) (model.Metadata, bool) {
	md, ok := m.Indicators[name]
	return md, ok
}

// Report returns the metadata of a report.
func (m *Manifest) Report(name string) (model.Metadata, bool) {
	md, ok := m.Reports[name]
	return md, ok
}

// Layer returns a layer definition.
func (m *Manifest) Layer(name string) (model.Layer, bool) {
	l, ok := m.Layers[name]
	return l, ok
}

// Dataset returns a dataset definition.
func (m *Manifest) Dataset(name string) (model.Dataset, bool) {
	d, ok := m.Datasets[name]
	return d, ok
}

// Raster returns a raster definition.
func (m *Manifest) Raster(name string) (model.Raster, bool) {
	r, ok := m.Rasters[name]
	return r, ok
}

func (m *Manifest) IndicatorNames() []string { return slices.Sorted(maps.Keys(m.Indicators)) }
func (m *Manifest) ReportNames() []string    { return slices.Sorted(maps.Keys(m.Reports)) }
func (m *Manifest) LayerNames() []string     { return slices.Sorted(maps.Keys(m.Layers)) }
func (m *Manifest) DatasetNames() []string   { return slices.Sorted(maps.Keys(m.Datasets)) }
