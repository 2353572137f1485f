package indicators

import (
	"context"
	"math"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

var minimalPlaceholders = []string{"count"}

var minimalBands = core.Bands{
	{Lower: 1, Upper: math.Inf(1), Class: model.ClassGreen},
	{Lower: 0, Upper: 1, Class: model.ClassRed},
}

// Minimal checks that the layer has any feature in the AOI.
type Minimal struct {
	core.Base
	count float64
}

func (m *Minimal) Preprocess(ctx context.Context) error {
	stats, err := queryStatistics(ctx, &m.Base, m.AOI(), model.QueryOptions{})
	if err != nil {
		return err
	}
	m.count = stats.Value
	m.SetOSMTimestamp(stats.Timestamp)
	return nil
}

func (m *Minimal) Calculate() error {
	value := 0.0
	if m.count > 0 {
		value = 1
	}
	return m.Classify(value, minimalBands, map[string]string{"count": core.Num(m.count, 0)})
}

func (m *Minimal) CreateFigure() error {
	return m.Figure(model.Figure{
		Title:  "Feature count",
		YLabel: "Features",
		Bars:   []model.FigureBar{{X0: 0, X1: 1, Height: m.count, Label: m.Result().Label()}},
	})
}
