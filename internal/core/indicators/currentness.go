package indicators

import (
	"context"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

var currentnessPlaceholders = []string{"recent_share", "elements", "years"}

var currentnessBands = core.Thresholds(0.6, 0.2)

const (
	// contributionsStart buckets the latest edit of every feature by year.
	contributionsStart = "2008-01-01//P1Y"
	recentYears        = 3
)

// Currentness measures the share of features whose latest edit falls into
// the last few yearly buckets.
type Currentness struct {
	core.Base
	buckets []model.SeriesPoint
	total   float64
	recent  float64
}

func (c *Currentness) Preprocess(ctx context.Context) error {
	stats, err := queryStatistics(ctx, &c.Base, c.AOI(), model.QueryOptions{
		Time:                contributionsStart,
		LatestContributions: true,
	})
	if err != nil {
		return err
	}
	if len(stats.Series) == 0 {
		return core.DataGap("no contributions in AOI")
	}
	c.buckets = stats.Series
	c.total, c.recent = 0, 0
	for i, p := range c.buckets {
		v := finiteOrZero(p.Value)
		c.total += v
		if i >= len(c.buckets)-recentYears {
			c.recent += v
		}
	}
	if c.total <= 0 {
		return core.DataGap("no features of the layer were ever edited in AOI")
	}
	c.SetOSMTimestamp(stats.Timestamp)
	return nil
}

func (c *Currentness) Calculate() error {
	share := c.recent / c.total
	return c.Classify(share, currentnessBands, map[string]string{
		"recent_share": core.Num(share*100, 1),
		"elements":     core.Num(c.total, 0),
		"years":        core.Num(recentYears, 0),
	})
}

func (c *Currentness) CreateFigure() error {
	bars := make([]model.FigureBar, len(c.buckets))
	for i, p := range c.buckets {
		label := model.LabelUndefined
		if i >= len(c.buckets)-recentYears {
			label = c.Result().Label()
		}
		year := float64(p.Timestamp.Year())
		bars[i] = model.FigureBar{X0: year, X1: year + 1, Height: p.Value / c.total, Label: label}
	}
	return c.Figure(model.Figure{
		Title:  "Year of latest edit",
		XLabel: "Year",
		YLabel: "Share of features",
		Bars:   bars,
	})
}
