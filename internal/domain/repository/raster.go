package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"oqt_service/internal/domain/model"
)

// RasterRepository computes zonal statistics on PostGIS raster tables.
type RasterRepository struct {
	db     *sqlx.DB
	schema string
}

func NewRasterRepository(db *sqlx.DB, schema string) *RasterRepository {
	return &RasterRepository{db: db, schema: schema}
}

const clippedRasterCTE = `
	WITH aoi AS (SELECT ST_GeomFromWKB($1, 4326) AS geom),
	clipped AS (
		SELECT ST_Clip(r.rast, ST_Transform(aoi.geom, ST_SRID(r.rast)), true) AS rast
		FROM %s r, aoi
		WHERE ST_Intersects(r.rast, ST_Transform(aoi.geom, ST_SRID(r.rast)))
	)`

// ZonalStats returns one row per AOI feature. Summary requests fill "sum" and
// "count"; categorical requests fill one pixel count per mapped class plus
// the total "count".
func (r *RasterRepository) ZonalStats(ctx context.Context, aoi *model.AOI, raster *model.Raster, req model.ZonalRequest) ([]map[string]float64, error) {
	if err := checkIdentifier(raster.Table); err != nil {
		return nil, err
	}
	table := qualify(r.schema, raster.Table)

	rows := make([]map[string]float64, aoi.Len())
	for i, f := range aoi.Features {
		g, err := featureWKB(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("failed to encode feature %s: %w", f.ID, err)
		}
		if req.Categorical {
			rows[i], err = r.valueCounts(ctx, table, g, req.CategoryMap)
		} else {
			rows[i], err = r.summary(ctx, table, g)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to compute zonal stats of %s: %w", raster.Name, err)
		}
	}
	return rows, nil
}

func (r *RasterRepository) summary(ctx context.Context, table string, g []byte) (map[string]float64, error) {
	query := fmt.Sprintf(clippedRasterCTE, table) + `
	SELECT COALESCE((s).sum, 0) AS sum, COALESCE((s).count, 0) AS count
	FROM (SELECT ST_SummaryStatsAgg(rast, 1, true) AS s FROM clipped) agg`

	var row struct {
		Sum   float64 `db:"sum"`
		Count float64 `db:"count"`
	}
	if err := r.db.GetContext(ctx, &row, query, g); err != nil {
		return nil, err
	}
	return map[string]float64{"sum": row.Sum, "count": row.Count}, nil
}

func (r *RasterRepository) valueCounts(ctx context.Context, table string, g []byte, categories map[int]string) (map[string]float64, error) {
	query := fmt.Sprintf(clippedRasterCTE, table) + `
	SELECT (pvc).value::integer AS value, SUM((pvc).count) AS count
	FROM (SELECT ST_ValueCount(rast, 1, true) AS pvc FROM clipped) v
	GROUP BY (pvc).value`

	var counts []struct {
		Value int     `db:"value"`
		Count float64 `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &counts, query, g); err != nil {
		return nil, err
	}
	row := map[string]float64{"count": 0}
	for _, name := range categories {
		row[name] = 0
	}
	for _, c := range counts {
		row["count"] += c.Count
		if name, ok := categories[c.Value]; ok {
			row[name] += c.Count
		}
	}
	return row, nil
}
