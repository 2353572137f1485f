package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"oqt_service/internal/domain/model"
)

// ResultStore resolves dataset features to AOIs and keeps one result blob per
// dataset, feature and indicator or report name.
type ResultStore interface {
	GetAOI(ctx context.Context, dataset string, featureID int) (*model.AOI, error)
	SaveResult(ctx context.Context, dataset string, featureID int, name string, blob []byte) error
	GetResult(ctx context.Context, dataset string, featureID int, name string) ([]byte, error)
	FeatureIDs(ctx context.Context, dataset string) ([]int, error)
}

// Target is either an explicit AOI or a dataset feature reference.
type Target struct {
	AOI       *model.AOI
	Dataset   string
	FeatureID *int
}

func (t Target) fromDataset() bool {
	return t.Dataset != ""
}

type IndicatorRequest struct {
	Name  string
	Layer string
	Target
	// Force recomputes even when a stored result exists.
	Force bool
}

type ReportRequest struct {
	Name string
	Target
	Force             bool
	BlockingRed       *bool
	BlockingUndefined *bool
}

// QualityService resolves names and AOIs, runs indicator and report
// lifecycles and persists results of dataset features.
type QualityService struct {
	registry *Registry
	deps     Deps
	store    ResultStore
}

func NewQualityService(registry *Registry, deps Deps, store ResultStore) *QualityService {
	return &QualityService{
		registry: registry,
		deps:     deps,
		store:    store,
	}
}

func (s *QualityService) Registry() *Registry {
	return s.registry
}

func (s *QualityService) runDeps() Deps {
	deps := s.deps
	deps.Logger = deps.logger().With("run_id", uuid.NewString())
	return deps
}

func (s *QualityService) resolveAOI(ctx context.Context, t Target) (*model.AOI, error) {
	if t.AOI != nil && t.fromDataset() {
		return nil, fmt.Errorf("%w: give either an AOI or a dataset feature, not both", model.ErrInvalidAOI)
	}
	if t.AOI != nil {
		return t.AOI, nil
	}
	if !t.fromDataset() {
		return nil, fmt.Errorf("%w: no AOI and no dataset given", model.ErrInvalidAOI)
	}
	if _, ok := s.registry.Manifest().Dataset(t.Dataset); !ok {
		return nil, fmt.Errorf("%w: dataset %q", ErrNameResolution, t.Dataset)
	}
	if t.FeatureID == nil {
		return nil, fmt.Errorf("%w: dataset %q needs a feature id", model.ErrInvalidAOI, t.Dataset)
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: no geodatabase configured", ErrConfiguration)
	}
	aoi, err := s.store.GetAOI(ctx, t.Dataset, *t.FeatureID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feature %d of %s: %w", *t.FeatureID, t.Dataset, err)
	}
	return aoi, nil
}

// loadStored decodes a stored blob into out. A missing entry reports false.
func (s *QualityService) loadStored(ctx context.Context, t Target, name string, out any) (bool, error) {
	blob, err := s.store.GetResult(ctx, t.Dataset, *t.FeatureID, name)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return false, fmt.Errorf("%w: %s of feature %d in %s: %v", model.ErrMalformedResult, name, *t.FeatureID, t.Dataset, err)
	}
	return true, nil
}

func (s *QualityService) save(ctx context.Context, t Target, name string, view any) error {
	blob, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode %s result: %w", name, err)
	}
	if err := s.store.SaveResult(ctx, t.Dataset, *t.FeatureID, name, blob); err != nil {
		return fmt.Errorf("failed to save %s result: %w", name, err)
	}
	return nil
}

// CreateIndicator computes one indicator. For dataset features a stored
// result of the same layer is returned unless Force is set, and fresh results
// are saved.
func (s *QualityService) CreateIndicator(ctx context.Context, req IndicatorRequest) (*IndicatorView, error) {
	if _, err := s.registry.ResolveIndicator(req.Name); err != nil {
		return nil, err
	}
	if _, err := s.registry.resolveLayer(req.Layer); err != nil {
		return nil, err
	}
	aoi, err := s.resolveAOI(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	deps := s.runDeps()
	logger := deps.Logger.With("indicator", req.Name, "layer", req.Layer)

	if req.fromDataset() && !req.Force {
		var stored IndicatorView
		found, err := s.loadStored(ctx, req.Target, req.Name, &stored)
		if err != nil {
			return nil, err
		}
		if found && stored.Layer.Name == req.Layer {
			logger.Info("using stored result", "dataset", req.Dataset, "feature_id", *req.FeatureID)
			stored.Metadata, _ = s.registry.Manifest().Indicator(req.Name)
			stored.aoi = aoi
			return &stored, nil
		}
	}

	ind, err := s.registry.NewIndicator(req.Name, req.Layer, aoi, deps)
	if err != nil {
		return nil, err
	}
	if err := NewLifecycle(ind, deps.Logger).Run(ctx); err != nil {
		return nil, err
	}
	view := newIndicatorView(ind)

	if req.fromDataset() {
		if err := s.save(ctx, req.Target, req.Name, view); err != nil {
			return nil, err
		}
	}
	logger.Info("indicator created", "label", ind.Result().Label())
	return view, nil
}

// CreateReport computes a report. Stored results are reused under the same
// rules as indicators; the blocking flags must match as well.
func (s *QualityService) CreateReport(ctx context.Context, req ReportRequest) (*ReportView, error) {
	def, err := s.registry.ResolveReport(req.Name)
	if err != nil {
		return nil, err
	}
	aoi, err := s.resolveAOI(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	deps := s.runDeps()
	logger := deps.Logger.With("report", req.Name)

	var opts []ReportOption
	blockingRed, blockingUndefined := def.BlockingRed, def.BlockingUndefined
	if req.BlockingRed != nil {
		blockingRed = *req.BlockingRed
		opts = append(opts, WithBlockingRed(blockingRed))
	}
	if req.BlockingUndefined != nil {
		blockingUndefined = *req.BlockingUndefined
		opts = append(opts, WithBlockingUndefined(blockingUndefined))
	}

	if req.fromDataset() && !req.Force {
		var stored ReportView
		found, err := s.loadStored(ctx, req.Target, req.Name, &stored)
		if err != nil {
			return nil, err
		}
		if found && stored.BlockingRed == blockingRed && stored.BlockingUndefined == blockingUndefined {
			logger.Info("using stored result", "dataset", req.Dataset, "feature_id", *req.FeatureID)
			stored.Metadata, _ = s.registry.Manifest().Report(req.Name)
			stored.aoi = aoi
			return &stored, nil
		}
	}

	report, err := NewReport(s.registry, deps, req.Name, aoi, opts...)
	if err != nil {
		return nil, err
	}
	if err := report.Run(ctx); err != nil {
		return nil, err
	}
	view := newReportView(report)

	if req.fromDataset() {
		if err := s.save(ctx, req.Target, req.Name, view); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// BatchSummary counts the outcome of a dataset wide run.
type BatchSummary struct {
	Features int
	Created  int
	Failed   int
}

// CreateAllIndicators computes every report member indicator for every
// feature of a dataset and stores the results. Results are stored per
// indicator name, so an indicator used with several layers is computed for
// the first layer declared in report name order. Single failures are logged
// and counted; cancellation stops the run.
func (s *QualityService) CreateAllIndicators(ctx context.Context, dataset string, force bool) (BatchSummary, error) {
	var summary BatchSummary
	if _, ok := s.registry.Manifest().Dataset(dataset); !ok {
		return summary, fmt.Errorf("%w: dataset %q", ErrNameResolution, dataset)
	}
	if s.store == nil {
		return summary, fmt.Errorf("%w: no geodatabase configured", ErrConfiguration)
	}
	ids, err := s.store.FeatureIDs(ctx, dataset)
	if err != nil {
		return summary, fmt.Errorf("failed to list features of %s: %w", dataset, err)
	}
	summary.Features = len(ids)

	pairs := s.batchPairs()
	logger := s.deps.logger().With("dataset", dataset)
	logger.Info("batch started", "features", len(ids), "indicators", len(pairs))

	for _, id := range ids {
		for _, il := range pairs {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			_, err := s.CreateIndicator(ctx, IndicatorRequest{
				Name:   il.Indicator,
				Layer:  il.Layer,
				Target: Target{Dataset: dataset, FeatureID: &id},
				Force:  force,
			})
			if err != nil {
				summary.Failed++
				logger.Error("indicator failed", "feature_id", id, "indicator", il.Indicator, "layer", il.Layer, "error", err)
				continue
			}
			summary.Created++
		}
	}
	logger.Info("batch finished", "created", summary.Created, "failed", summary.Failed)
	return summary, nil
}

func (s *QualityService) batchPairs() []IndicatorLayer {
	seen := make(map[string]bool)
	var pairs []IndicatorLayer
	for _, name := range slices.Sorted(maps.Keys(s.registry.reports)) {
		for _, il := range s.registry.reports[name].IndicatorLayers {
			if seen[il.Indicator] {
				continue
			}
			seen[il.Indicator] = true
			pairs = append(pairs, il)
		}
	}
	return pairs
}

// StoredResult returns the raw stored blob of an indicator or report.
func (s *QualityService) StoredResult(ctx context.Context, dataset string, featureID int, name string) (json.RawMessage, error) {
	if _, ok := s.registry.Manifest().Dataset(dataset); !ok {
		return nil, fmt.Errorf("%w: dataset %q", ErrNameResolution, dataset)
	}
	_, isIndicator := s.registry.indicators[name]
	_, isReport := s.registry.reports[name]
	if !isIndicator && !isReport {
		return nil, fmt.Errorf("%w: %q", ErrNameResolution, name)
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: no geodatabase configured", ErrConfiguration)
	}
	blob, err := s.store.GetResult(ctx, dataset, featureID, name)
	if err != nil {
		return nil, err
	}
	if !json.Valid(blob) {
		return nil, fmt.Errorf("%w: %s of feature %d in %s", model.ErrMalformedResult, name, featureID, dataset)
	}
	return blob, nil
}
