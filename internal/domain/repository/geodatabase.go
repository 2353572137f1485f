package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"oqt_service/internal/domain/model"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	hexCellTable = "isea3h_world_res_12_hex"
	shdiTable    = "shdi"
)

// Connect opens and pings a database pool for the given driver.
func Connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if driver == DriverSQLite {
		sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY on concurrent saves
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Geodatabase reads AOIs from dataset tables and stores results as JSON blobs
// in one table per dataset and indicator.
type Geodatabase struct {
	db       *sqlx.DB
	schema   string
	datasets map[string]model.Dataset
}

// NewGeodatabase serves the allow-listed datasets from db. The schema is
// ignored for sqlite.
func NewGeodatabase(db *sqlx.DB, schema string, datasets map[string]model.Dataset) *Geodatabase {
	if db.DriverName() == DriverSQLite {
		schema = ""
	}
	return &Geodatabase{db: db, schema: schema, datasets: datasets}
}

func (g *Geodatabase) postgres() bool {
	return g.db.DriverName() == DriverPostgres
}

func (g *Geodatabase) datasetTable(dataset string) (string, error) {
	if _, ok := g.datasets[dataset]; !ok {
		return "", fmt.Errorf("%w: dataset %q", model.ErrNotFound, dataset)
	}
	if err := checkIdentifier(dataset); err != nil {
		return "", err
	}
	return qualify(g.schema, dataset), nil
}

// GetAOI loads one feature of a dataset.
func (g *Geodatabase) GetAOI(ctx context.Context, dataset string, featureID int) (*model.AOI, error) {
	table, err := g.datasetTable(dataset)
	if err != nil {
		return nil, err
	}
	query := `SELECT fid, geom, properties FROM ` + table + ` WHERE fid = ?`
	if g.postgres() {
		query = `SELECT fid, ST_AsBinary(geom) AS geom, (to_jsonb(t) - 'geom' - 'fid')::text AS properties
			FROM ` + table + ` t WHERE fid = ?`
	}

	var row struct {
		FID        int            `db:"fid"`
		Geom       []byte         `db:"geom"`
		Properties sql.NullString `db:"properties"`
	}
	err = g.db.GetContext(ctx, &row, g.db.Rebind(query), featureID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: feature %d of dataset %s", model.ErrNotFound, featureID, dataset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feature %d of %s: %w", featureID, dataset, err)
	}

	geometry, err := wkb.Unmarshal(row.Geom)
	if err != nil {
		return nil, fmt.Errorf("failed to decode geometry of feature %d: %w", featureID, err)
	}
	props := map[string]any{}
	if row.Properties.Valid && row.Properties.String != "" {
		if err := json.Unmarshal([]byte(row.Properties.String), &props); err != nil {
			return nil, fmt.Errorf("failed to decode properties of feature %d: %w", featureID, err)
		}
	}
	return model.NewAOI(&model.Feature{ID: strconv.Itoa(row.FID), Geometry: geometry, Properties: props})
}

// FeatureIDs lists all feature ids of a dataset in ascending order.
func (g *Geodatabase) FeatureIDs(ctx context.Context, dataset string) ([]int, error) {
	table, err := g.datasetTable(dataset)
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := g.db.SelectContext(ctx, &ids, `SELECT fid FROM `+table+` ORDER BY fid`); err != nil {
		return nil, fmt.Errorf("failed to list features of %s: %w", dataset, err)
	}
	return ids, nil
}

// SaveResult upserts the result blob of a feature, creating the result table
// on first use.
func (g *Geodatabase) SaveResult(ctx context.Context, dataset string, featureID int, name string, blob []byte) (err error) {
	tableName, err := TableName(dataset, name)
	if err != nil {
		return err
	}
	if !json.Valid(blob) {
		return fmt.Errorf("%w: refusing to store invalid JSON for %s", model.ErrMalformedResult, tableName)
	}
	table := qualify(g.schema, tableName)

	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("rollback failed", "table", tableName, "error", rbErr)
			}
		}
	}()

	create := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		fid integer,
		results json,
		CONSTRAINT ` + qualify("", ConstraintNameOf(tableName)) + ` PRIMARY KEY (fid)
	)`
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create result table %s: %w", tableName, err)
	}

	upsert := `INSERT INTO ` + table + ` (fid, results) VALUES (?, ?)
		ON CONFLICT (fid) DO UPDATE SET results = excluded.results`
	if _, err = tx.ExecContext(ctx, tx.Rebind(upsert), featureID, string(blob)); err != nil {
		return fmt.Errorf("failed to save result %s for feature %d: %w", tableName, featureID, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result %s: %w", tableName, err)
	}
	return nil
}

// GetResult returns the stored blob of a feature. A missing table or row is
// ErrNotFound.
func (g *Geodatabase) GetResult(ctx context.Context, dataset string, featureID int, name string) ([]byte, error) {
	tableName, err := TableName(dataset, name)
	if err != nil {
		return nil, err
	}
	exists, err := g.tableExists(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: no results for %s", model.ErrNotFound, tableName)
	}

	var blob []byte
	query := g.db.Rebind(`SELECT results FROM ` + qualify(g.schema, tableName) + ` WHERE fid = ?`)
	err = g.db.GetContext(ctx, &blob, query, featureID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no result %s for feature %d", model.ErrNotFound, tableName, featureID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result %s: %w", tableName, err)
	}
	if !json.Valid(blob) {
		return nil, fmt.Errorf("%w: %s for feature %d", model.ErrMalformedResult, tableName, featureID)
	}
	return blob, nil
}

func (g *Geodatabase) tableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	var err error
	if g.postgres() {
		err = g.db.GetContext(ctx, &exists, `SELECT to_regclass($1) IS NOT NULL`, qualify(g.schema, table))
	} else {
		err = g.db.GetContext(ctx, &exists,
			`SELECT count(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", table, err)
	}
	return exists, nil
}

// HexCells returns the hex cells intersecting any AOI feature, each with its
// area in square kilometres.
func (g *Geodatabase) HexCells(ctx context.Context, aoi *model.AOI) (*model.AOI, error) {
	if !g.postgres() {
		return nil, fmt.Errorf("%w: hex cells need PostGIS", model.ErrUnsupported)
	}
	const query = `
		SELECT id, ST_AsBinary(geom) AS geom, ST_Area(geom::geography) / 1e6 AS area
		FROM %s
		WHERE ST_Intersects(geom, ST_GeomFromWKB($1, 4326))
		ORDER BY id`

	seen := map[string]bool{}
	var cells []*model.Feature
	for _, f := range aoi.Features {
		aoiWKB, err := featureWKB(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("failed to encode AOI: %w", err)
		}
		var rows []struct {
			ID   int64   `db:"id"`
			Geom []byte  `db:"geom"`
			Area float64 `db:"area"`
		}
		if err := g.db.SelectContext(ctx, &rows, fmt.Sprintf(query, qualify(g.schema, hexCellTable)), aoiWKB); err != nil {
			return nil, fmt.Errorf("failed to query hex cells: %w", err)
		}
		for _, r := range rows {
			id := strconv.FormatInt(r.ID, 10)
			if seen[id] {
				continue
			}
			seen[id] = true
			geometry, err := wkb.Unmarshal(r.Geom)
			if err != nil {
				return nil, fmt.Errorf("failed to decode hex cell %s: %w", id, err)
			}
			cells = append(cells, &model.Feature{ID: id, Geometry: geometry, Properties: map[string]any{"area": r.Area}})
		}
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: no hex cells", model.ErrNotFound)
	}
	return model.NewAOI(cells...)
}

// SHDI returns the area weighted subnational human development index per
// cell. Cells without coverage get zero.
func (g *Geodatabase) SHDI(ctx context.Context, cells *model.AOI) ([]float64, error) {
	if !g.postgres() {
		return nil, fmt.Errorf("%w: SHDI needs PostGIS", model.ErrUnsupported)
	}
	query := fmt.Sprintf(`
		SELECT COALESCE(
			SUM(shdi * ST_Area(ST_Intersection(geom, c.g))) / NULLIF(SUM(ST_Area(ST_Intersection(geom, c.g))), 0),
			0)
		FROM %s, (SELECT ST_GeomFromWKB($1, 4326) AS g) c
		WHERE ST_Intersects(geom, c.g)`, qualify(g.schema, shdiTable))

	values := make([]float64, cells.Len())
	for i, f := range cells.Features {
		cellWKB, err := featureWKB(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cell %s: %w", f.ID, err)
		}
		if err := g.db.GetContext(ctx, &values[i], query, cellWKB); err != nil {
			return nil, fmt.Errorf("failed to query SHDI for cell %s: %w", f.ID, err)
		}
	}
	return values, nil
}

// featureWKB encodes a geometry for a PostGIS parameter.
func featureWKB(g geom.T) ([]byte, error) {
	return wkb.Marshal(g, wkb.NDR)
}
