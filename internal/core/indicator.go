package core

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"oqt_service/internal/domain/model"
)

// Indicator computes one quality measure for a layer over an AOI.
//
// Preprocess fetches everything the indicator needs and is the only step that
// may block. Calculate derives value, class and description from the
// preprocessed data. CreateFigure renders the SVG. Callers drive the steps
// through a Lifecycle.
type Indicator interface {
	Name() string
	Metadata() model.Metadata
	Layer() model.Layer
	AOI() *model.AOI
	Result() *model.Result
	// Data returns the intermediate values the description was rendered from.
	Data() map[string]string
	Preprocess(ctx context.Context) error
	Calculate() error
	CreateFigure() error
}

// Deps are the collaborators shared by all indicators of a run.
type Deps struct {
	Statistics model.StatisticsClient
	Raster     model.RasterClient
	Aux        model.AuxiliaryStore
	Predictor  model.Predictor
	Renderer   model.Renderer
	Rasters    map[string]model.Raster
	Logger     *slog.Logger
	Clock      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Base carries the state every indicator shares. Concrete indicators embed it.
type Base struct {
	Deps

	metadata    model.Metadata
	layer       model.Layer
	aoi         *model.AOI
	result      *model.Result
	description *Template
	data        map[string]string
}

// NewBase prepares the shared state with a fresh undefined result.
func NewBase(md model.Metadata, layer model.Layer, aoi *model.AOI, description *Template, deps Deps) Base {
	return Base{
		Deps:        deps,
		metadata:    md,
		layer:       layer,
		aoi:         aoi,
		result:      model.NewResult(deps.now()),
		description: description,
	}
}

func (b *Base) Name() string             { return b.metadata.Name }
func (b *Base) Metadata() model.Metadata { return b.metadata }
func (b *Base) Layer() model.Layer       { return b.layer }
func (b *Base) AOI() *model.AOI          { return b.aoi }
func (b *Base) Result() *model.Result    { return b.result }
func (b *Base) Data() map[string]string  { return maps.Clone(b.data) }

// Log returns the run logger annotated with indicator and layer.
func (b *Base) Log() *slog.Logger {
	return b.logger().With("indicator", b.metadata.Name, "layer", b.layer.Name)
}

// SetOSMTimestamp records the data snapshot the result is based on.
func (b *Base) SetOSMTimestamp(ts *time.Time) {
	if ts != nil {
		t := *ts
		b.result.TimestampOSM = &t
	}
}

// Classify assigns value and its band class to the result and renders the
// description followed by the label text.
func (b *Base) Classify(value float64, bands Bands, values map[string]string) error {
	class, err := bands.Classify(value)
	if err != nil {
		return fmt.Errorf("%s: %w", b.metadata.Name, err)
	}
	if err := b.result.Set(value, class); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return b.Describe(values)
}

// Describe renders the result description from the metadata template.
func (b *Base) Describe(values map[string]string) error {
	b.data = maps.Clone(values)
	text := ""
	if b.description != nil {
		var err error
		if text, err = b.description.Render(values); err != nil {
			return fmt.Errorf("%s: %w", b.metadata.Name, err)
		}
	}
	b.result.Description = text + b.metadata.LabelText(b.result.Label())
	return nil
}

// Figure renders fig to the result SVG. Without a renderer no figure is set.
func (b *Base) Figure(fig model.Figure) error {
	if b.Renderer == nil {
		return nil
	}
	svg, err := b.Renderer.Render(fig)
	if err != nil {
		return fmt.Errorf("failed to render figure: %w", err)
	}
	b.result.SVG = &svg
	return nil
}

// RasterByName resolves a raster from the allow-list.
func (b *Base) RasterByName(name string) (*model.Raster, error) {
	r, ok := b.Rasters[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown raster %q", ErrConfiguration, name)
	}
	return &r, nil
}
