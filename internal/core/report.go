package core

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"oqt_service/internal/domain/model"
)

// IndicatorLayer declares one report member.
type IndicatorLayer struct {
	Indicator string `json:"indicator"`
	Layer     string `json:"layer"`
}

// ReportDefinition is the static declaration of a report.
type ReportDefinition struct {
	Name              string
	IndicatorLayers   []IndicatorLayer
	BlockingRed       bool
	BlockingUndefined bool
}

// Report runs a fixed set of indicators on one AOI and combines their
// results. A report lives for a single request.
type Report struct {
	definition        ReportDefinition
	metadata          model.Metadata
	aoi               *model.AOI
	blockingRed       bool
	blockingUndefined bool
	lifecycles        []*Lifecycle
	result            *model.Result
	logger            *slog.Logger
}

type ReportOption func(*Report)

// WithBlockingRed overrides the declared blocking_red flag.
func WithBlockingRed(v bool) ReportOption {
	return func(r *Report) { r.blockingRed = v }
}

// WithBlockingUndefined overrides the declared blocking_undefined flag.
func WithBlockingUndefined(v bool) ReportOption {
	return func(r *Report) { r.blockingUndefined = v }
}

// NewReport instantiates one indicator per declared member, all sharing aoi.
func NewReport(reg *Registry, deps Deps, name string, aoi *model.AOI, opts ...ReportOption) (*Report, error) {
	def, err := reg.ResolveReport(name)
	if err != nil {
		return nil, err
	}
	md, ok := reg.Manifest().Report(name)
	if !ok {
		return nil, fmt.Errorf("%w: report %q has no metadata", ErrConfiguration, name)
	}
	r := &Report{
		definition:        def,
		metadata:          md,
		aoi:               aoi,
		blockingRed:       def.BlockingRed,
		blockingUndefined: def.BlockingUndefined,
		result:            model.NewResult(deps.now()),
		logger:            deps.logger().With("report", name),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, il := range def.IndicatorLayers {
		ind, err := reg.NewIndicator(il.Indicator, il.Layer, aoi, deps)
		if err != nil {
			return nil, fmt.Errorf("report %q: %w", name, err)
		}
		r.lifecycles = append(r.lifecycles, NewLifecycle(ind, r.logger))
	}
	return r, nil
}

func (r *Report) Name() string             { return r.definition.Name }
func (r *Report) Metadata() model.Metadata { return r.metadata }
func (r *Report) AOI() *model.AOI          { return r.aoi }
func (r *Report) Result() *model.Result    { return r.result }
func (r *Report) BlockingRed() bool        { return r.blockingRed }
func (r *Report) BlockingUndefined() bool  { return r.blockingUndefined }

// Indicators returns the members in declaration order.
func (r *Report) Indicators() []Indicator {
	out := make([]Indicator, len(r.lifecycles))
	for i, lc := range r.lifecycles {
		out[i] = lc.Indicator()
	}
	return out
}

// Run preprocesses and calculates all members concurrently, creates their
// figures, then combines the results and renders the HTML summary. The first
// member failure cancels the others and fails the report.
func (r *Report) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, lc := range r.lifecycles {
		g.Go(func() error {
			if err := lc.Preprocess(gctx); err != nil {
				return err
			}
			return lc.Calculate()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("report %s: %w", r.definition.Name, err)
	}
	for _, lc := range r.lifecycles {
		if err := lc.CreateFigure(); err != nil {
			return fmt.Errorf("report %s: %w", r.definition.Name, err)
		}
	}
	if err := r.CombineIndicators(); err != nil {
		return fmt.Errorf("report %s: %w", r.definition.Name, err)
	}
	if err := r.CreateHTML(); err != nil {
		return err
	}
	r.logger.Info("report finished", "label", r.result.Label())
	return nil
}

// CombineIndicators sets the report result from the member results.
func (r *Report) CombineIndicators() error {
	results := make([]*model.Result, len(r.lifecycles))
	for i, lc := range r.lifecycles {
		results[i] = lc.Indicator().Result()
	}
	value, class, ok := CombineResults(results, r.blockingRed, r.blockingUndefined)
	if !ok {
		r.result.SetUndefined(r.metadata.LabelText(model.LabelUndefined))
		return nil
	}
	if err := r.result.Set(value, class); err != nil {
		return fmt.Errorf("%w: combined result: %v", ErrInvariantViolation, err)
	}
	r.result.Description = r.metadata.LabelText(r.result.Label())
	return nil
}

// CombineResults applies the aggregation rules in order:
//
//  1. an undefined member with blockingUndefined makes the report undefined;
//  2. otherwise a red member with blockingRed forces the worst observed class;
//  3. otherwise the class is the mean of the defined member classes, rounded
//     to the nearest class with ties going to the worse class.
//
// Undefined members are skipped when not blocking. Member values carry
// indicator specific units, so the value is the mean member class scaled to
// [0, 1]. ok is false when the result is undefined.
func CombineResults(results []*model.Result, blockingRed, blockingUndefined bool) (value float64, class model.Class, ok bool) {
	var (
		defined  []*model.Result
		worst    = model.ClassMax
		hasRed   bool
		classSum int
	)
	for _, res := range results {
		if res.Undefined() {
			if blockingUndefined {
				return 0, 0, false
			}
			continue
		}
		defined = append(defined, res)
		c := *res.Class()
		classSum += int(c)
		if c < worst {
			worst = c
		}
		if res.Label() == model.LabelRed {
			hasRed = true
		}
	}
	if len(defined) == 0 {
		return 0, 0, false
	}
	mean := float64(classSum) / float64(len(defined))
	value = (mean - float64(model.ClassMin)) / float64(model.ClassMax-model.ClassMin)
	if hasRed && blockingRed {
		return value, worst, true
	}
	return value, roundClass(mean), true
}

// roundClass rounds to the nearest class; x.5 goes down.
func roundClass(mean float64) model.Class {
	c := model.Class(math.Ceil(mean - 0.5 - 1e-9))
	return max(model.ClassMin, min(model.ClassMax, c))
}

var reportHTML = template.Must(template.New("report").Parse(`<div class="report">
<h2>{{.Name}}</h2>
<p class="label label-{{.Label}}">{{.Label}}</p>
<p>{{.Description}}</p>
<table>
<tr><th>Indicator</th><th>Layer</th><th>Label</th><th>Description</th><th>Figure</th></tr>
{{- range .Members}}
<tr><td>{{.Name}}</td><td>{{.Layer}}</td><td class="label-{{.Label}}">{{.Label}}</td><td>{{.Description}}</td><td>{{.SVG}}</td></tr>
{{- end}}
</table>
</div>`))

type htmlMember struct {
	Name        string
	Layer       string
	Label       model.Label
	Description string
	SVG         template.HTML
}

// CreateHTML renders a summary of the combined result and every member.
func (r *Report) CreateHTML() error {
	data := struct {
		Name        string
		Label       model.Label
		Description string
		Members     []htmlMember
	}{
		Name:        r.definition.Name,
		Label:       r.result.Label(),
		Description: r.result.Description,
	}
	for _, ind := range r.Indicators() {
		res := ind.Result()
		m := htmlMember{
			Name:        ind.Name(),
			Layer:       ind.Layer().Name,
			Label:       res.Label(),
			Description: res.Description,
		}
		if res.SVG != nil {
			// rendered by our own figure renderer
			m.SVG = template.HTML(*res.SVG)
		}
		data.Members = append(data.Members, m)
	}
	var sb strings.Builder
	if err := reportHTML.Execute(&sb, data); err != nil {
		return fmt.Errorf("failed to render report html: %w", err)
	}
	html := sb.String()
	r.result.HTML = &html
	return nil
}
