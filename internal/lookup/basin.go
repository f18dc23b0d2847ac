package lookup

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/db"
	"github.com/internetofwater/nldi-go/internal/errs"
)

// BasinStore computes upstream basin polygons by unioning the catchments
// of an unbounded upstream-tributaries walk. Basins are never persisted.
type BasinStore struct {
	db  *db.Pool
	log *zap.Logger
}

// NewBasinStore builds a basin store.
func NewBasinStore(pool *db.Pool, log *zap.Logger) *BasinStore {
	return &BasinStore{db: pool, log: log.Named("basin")}
}

const basinSQL = `
    SELECT ST_AsGeoJSON(ST_Union(c.the_geom), 9, 0)
    FROM nhdplus_navigation.navigate('UT', $1, NULL, NULL) AS nav(comid)
    JOIN nhdplus.catchmentsp c ON c.featureid = nav.comid
`

const basinSimplifiedSQL = `
    SELECT ST_AsGeoJSON(ST_Simplify(ST_Union(c.the_geom), 0.001), 9, 0)
    FROM nhdplus_navigation.navigate('UT', $1, NULL, NULL) AS nav(comid)
    JOIN nhdplus.catchmentsp c ON c.featureid = nav.comid
`

// Upstream returns the aggregated polygon of every catchment upstream of
// the given comid as raw GeoJSON.
func (s *BasinStore) Upstream(ctx context.Context, comid int64, simplified bool) (json.RawMessage, error) {
	sql := basinSQL
	if simplified {
		sql = basinSimplifiedSQL
	}

	var geom *string
	err := s.db.QueryRow(ctx, sql, comid).Scan(&geom)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.GeometryError, "no basin found for comid: %d", comid)
	}
	if err != nil {
		return nil, err
	}
	if geom == nil {
		return nil, errs.New(errs.GeometryError, "empty basin geometry for comid: %d", comid)
	}
	return json.RawMessage(*geom), nil
}
