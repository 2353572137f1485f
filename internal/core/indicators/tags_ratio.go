package indicators

import (
	"context"
	"fmt"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

var tagsRatioPlaceholders = []string{"ratio", "value", "value2"}

var tagsRatioBands = core.Thresholds(0.8, 0.2)

// TagsRatio is the share of layer features that also match the layer's ratio
// filter, e.g. buildings with an address.
type TagsRatio struct {
	core.Base
	total   float64
	matched float64
}

func (t *TagsRatio) Preprocess(ctx context.Context) error {
	if t.Layer().RatioFilter == "" {
		return fmt.Errorf("%w: layer %s has no ratio filter", core.ErrConfiguration, t.Layer().Name)
	}
	stats, err := queryStatistics(ctx, &t.Base, t.AOI(), model.QueryOptions{Ratio: true})
	if err != nil {
		return err
	}
	if stats.Value <= 0 {
		return core.DataGap("no features of layer %s in AOI", t.Layer().Name)
	}
	t.total = stats.Value
	t.matched = stats.Value2
	t.SetOSMTimestamp(stats.Timestamp)
	return nil
}

func (t *TagsRatio) Calculate() error {
	ratio := t.matched / t.total
	return t.Classify(ratio, tagsRatioBands, map[string]string{
		"ratio":  core.Num(ratio*100, 1),
		"value":  core.Num(t.total, 0),
		"value2": core.Num(t.matched, 0),
	})
}

func (t *TagsRatio) CreateFigure() error {
	return t.Figure(model.Figure{
		Title:  "Tagged features",
		YLabel: "Features",
		Bars: []model.FigureBar{
			{X0: 0, X1: 1, Height: t.total, Label: model.LabelUndefined},
			{X0: 1, X1: 2, Height: t.matched, Label: t.Result().Label()},
		},
	})
}
