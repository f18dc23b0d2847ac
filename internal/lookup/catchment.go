package lookup

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/db"
	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/wkt"
)

// Catchment is one nhdplus.catchmentsp polygon. FeatureID doubles as the
// comid of the flowline it drains to.
type Catchment struct {
	FeatureID int64
	Geometry  json.RawMessage
}

// CatchmentStore reads NHDPlus catchment polygons.
type CatchmentStore struct {
	db  *db.Pool
	log *zap.Logger
}

// NewCatchmentStore builds a catchment store.
func NewCatchmentStore(pool *db.Pool, log *zap.Logger) *CatchmentStore {
	return &CatchmentStore{db: pool, log: log.Named("catchment")}
}

const catchmentByComidSQL = `
    SELECT featureid, ST_AsGeoJSON(the_geom, 9, 0)
    FROM nhdplus.catchmentsp
    WHERE featureid = $1
`

// ByComid returns the catchment draining to the given comid.
func (s *CatchmentStore) ByComid(ctx context.Context, comid int64) (*Catchment, error) {
	var c Catchment
	var geom *string
	err := s.db.QueryRow(ctx, catchmentByComidSQL, comid).Scan(&c.FeatureID, &geom)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("no catchment found for comid: %d", comid)
	}
	if err != nil {
		return nil, err
	}
	if geom != nil {
		c.Geometry = json.RawMessage(*geom)
	}
	return &c, nil
}

const catchmentAtPointSQL = `
    SELECT featureid, ST_AsGeoJSON(the_geom, 9, 0)
    FROM nhdplus.catchmentsp
    WHERE ST_Intersects(the_geom, ST_GeomFromText($1, 4269))
    ORDER BY featureid
    LIMIT 1
`

// AtPoint returns the catchment containing the given point. When the
// point falls in overlapping catchments the lowest featureid wins.
func (s *CatchmentStore) AtPoint(ctx context.Context, lon, lat float64) (*Catchment, error) {
	var c Catchment
	var geom *string
	err := s.db.QueryRow(ctx, catchmentAtPointSQL, wkt.Point(lon, lat)).Scan(&c.FeatureID, &geom)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("no catchment found at %s", wkt.Point(lon, lat))
	}
	if err != nil {
		return nil, err
	}
	if geom != nil {
		c.Geometry = json.RawMessage(*geom)
	}
	return &c, nil
}
