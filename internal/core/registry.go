package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"oqt_service/internal/definitions"
	"oqt_service/internal/domain/model"
)

// Class types accepted by Resolve.
const (
	ClassIndicator = "indicator"
	ClassReport    = "report"
)

// IndicatorFactory builds an indicator around the prepared base state.
type IndicatorFactory func(base Base) Indicator

type indicatorEntry struct {
	placeholders []string
	factory      IndicatorFactory
}

// Registry maps indicator and report names to their implementations. It is
// filled once at startup and read-only afterwards.
type Registry struct {
	manifest   *definitions.Manifest
	indicators map[string]indicatorEntry
	reports    map[string]ReportDefinition
}

func NewRegistry(manifest *definitions.Manifest) *Registry {
	return &Registry{
		manifest:   manifest,
		indicators: make(map[string]indicatorEntry),
		reports:    make(map[string]ReportDefinition),
	}
}

func (r *Registry) Manifest() *definitions.Manifest {
	return r.manifest
}

// RegisterIndicator adds an implementation. placeholders lists the values the
// indicator provides to its result description. Registering a name twice
// panics.
func (r *Registry) RegisterIndicator(name string, placeholders []string, factory IndicatorFactory) {
	if _, dup := r.indicators[name]; dup {
		panic("core: indicator registered twice: " + name)
	}
	r.indicators[name] = indicatorEntry{placeholders: placeholders, factory: factory}
}

// RegisterReport adds a report declaration. Registering a name twice panics.
func (r *Registry) RegisterReport(def ReportDefinition) {
	if _, dup := r.reports[def.Name]; dup {
		panic("core: report registered twice: " + def.Name)
	}
	r.reports[def.Name] = def
}

// Resolve looks a name up for the given class type.
func (r *Registry) Resolve(classType, name string) (any, error) {
	switch classType {
	case ClassIndicator:
		factory, err := r.ResolveIndicator(name)
		if err != nil {
			return nil, err
		}
		return factory, nil
	case ClassReport:
		def, err := r.ResolveReport(name)
		if err != nil {
			return nil, err
		}
		return def, nil
	default:
		return nil, fmt.Errorf("%w: unknown class type %q", ErrNameResolution, classType)
	}
}

func (r *Registry) ResolveIndicator(name string) (IndicatorFactory, error) {
	entry, ok := r.indicators[name]
	if !ok {
		return nil, fmt.Errorf("%w: indicator %q", ErrNameResolution, name)
	}
	return entry.factory, nil
}

func (r *Registry) ResolveReport(name string) (ReportDefinition, error) {
	def, ok := r.reports[name]
	if !ok {
		return ReportDefinition{}, fmt.Errorf("%w: report %q", ErrNameResolution, name)
	}
	return def, nil
}

func (r *Registry) resolveLayer(name string) (model.Layer, error) {
	layer, ok := r.manifest.Layer(name)
	if !ok {
		return model.Layer{}, fmt.Errorf("%w: layer %q", ErrNameResolution, name)
	}
	return layer, nil
}

// NewIndicator instantiates the named indicator for a layer and AOI.
func (r *Registry) NewIndicator(name, layerName string, aoi *model.AOI, deps Deps) (Indicator, error) {
	entry, ok := r.indicators[name]
	if !ok {
		return nil, fmt.Errorf("%w: indicator %q", ErrNameResolution, name)
	}
	md, ok := r.manifest.Indicator(name)
	if !ok {
		return nil, fmt.Errorf("%w: indicator %q has no metadata", ErrConfiguration, name)
	}
	layer, err := r.resolveLayer(layerName)
	if err != nil {
		return nil, err
	}
	tmpl, err := NewTemplate(md.ResultDescription, entry.placeholders)
	if err != nil {
		return nil, fmt.Errorf("indicator %q: %w", name, err)
	}
	if deps.Rasters == nil {
		deps.Rasters = r.manifest.Rasters
	}
	return entry.factory(NewBase(md, layer, aoi, tmpl, deps)), nil
}

// Validate checks that definitions and implementations match one to one.
// It is meant to run once at startup and reports every mismatch it finds.
func (r *Registry) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...))
	}

	for _, name := range slices.Sorted(maps.Keys(r.manifest.Indicators)) {
		if _, ok := r.indicators[name]; !ok {
			fail("indicator %q has metadata but no implementation", name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(r.indicators)) {
		md, ok := r.manifest.Indicator(name)
		if !ok {
			fail("indicator %q is implemented but has no metadata", name)
			continue
		}
		if _, err := NewTemplate(md.ResultDescription, r.indicators[name].placeholders); err != nil {
			errs = append(errs, fmt.Errorf("indicator %q: %w", name, err))
		}
		validateLabels(md, fail)
	}

	for _, name := range slices.Sorted(maps.Keys(r.manifest.Reports)) {
		if _, ok := r.reports[name]; !ok {
			fail("report %q has metadata but no declaration", name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(r.reports)) {
		md, ok := r.manifest.Report(name)
		if !ok {
			fail("report %q is declared but has no metadata", name)
			continue
		}
		validateLabels(md, fail)
		def := r.reports[name]
		if len(def.IndicatorLayers) == 0 {
			fail("report %q has no indicators", name)
		}
		for _, il := range def.IndicatorLayers {
			if _, ok := r.indicators[il.Indicator]; !ok {
				fail("report %q references unknown indicator %q", name, il.Indicator)
			}
			if _, ok := r.manifest.Layer(il.Layer); !ok {
				fail("report %q references unknown layer %q", name, il.Layer)
			}
		}
	}
	return errors.Join(errs...)
}

func validateLabels(md model.Metadata, fail func(string, ...any)) {
	for _, label := range model.Labels {
		if _, ok := md.LabelDescription[label]; !ok {
			fail("%q has no label description for %s", md.Name, label)
		}
	}
}

// IndicatorNames lists the registered indicators.
func (r *Registry) IndicatorNames() []string {
	return slices.Sorted(maps.Keys(r.indicators))
}

// ReportNames lists the registered reports.
func (r *Registry) ReportNames() []string {
	return slices.Sorted(maps.Keys(r.reports))
}
