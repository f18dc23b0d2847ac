// Package lookup holds the query stores for the linked-data tables: one
// small store per responsibility, all reading through the shared pool.
// Geometry comes back from PostGIS as GeoJSON text and is never parsed.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/db"
	"github.com/internetofwater/nldi-go/internal/errs"
)

// Flowline is one nhdplus.nhdflowline_np21 row with its mainstem
// annotation. Geometry is nil when the shape is null.
type Flowline struct {
	Comid               int64
	PermanentIdentifier *string
	Reachcode           *string
	FMeasure            *float64
	TMeasure            *float64
	Geometry            json.RawMessage
	MainstemURI         *string
}

// Point is a lon/lat pair in NAD83.
type Point struct {
	Lon float64
	Lat float64
}

// Trim describes how to cut the starting flowline of a navigation at the
// anchor measure. Upstream walks keep the portion above the anchor,
// downstream walks the portion below.
type Trim struct {
	Comid    int64
	Measure  float64
	Upstream bool
}

// FlowlineStore reads NHDPlus flowlines.
type FlowlineStore struct {
	db  *db.Pool
	log *zap.Logger
}

// NewFlowlineStore builds a flowline store.
func NewFlowlineStore(pool *db.Pool, log *zap.Logger) *FlowlineStore {
	return &FlowlineStore{db: pool, log: log.Named("flowline")}
}

const flowlineByComidSQL = `
    SELECT f.nhdplus_comid, f.permanent_identifier, f.reachcode, f.fmeasure, f.tmeasure,
           ST_AsGeoJSON(f.shape, 9, 0),
           m.uri
    FROM nhdplus.nhdflowline_np21 f
    LEFT JOIN nldi_data.mainstem_lookup m ON m.nhdpv2_comid = f.nhdplus_comid
    WHERE f.nhdplus_comid = $1
`

// ByComid returns the flowline for one comid.
func (s *FlowlineStore) ByComid(ctx context.Context, comid int64) (*Flowline, error) {
	var fl Flowline
	var geom *string
	err := s.db.QueryRow(ctx, flowlineByComidSQL, comid).Scan(
		&fl.Comid,
		&fl.PermanentIdentifier,
		&fl.Reachcode,
		&fl.FMeasure,
		&fl.TMeasure,
		&geom,
		&fl.MainstemURI,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("no comid found for: %d", comid)
	}
	if err != nil {
		return nil, err
	}
	if geom != nil {
		fl.Geometry = json.RawMessage(*geom)
	}
	return &fl, nil
}

const flowlineExistsSQL = `
    SELECT 1 FROM nhdplus.nhdflowline_np21 WHERE nhdplus_comid = $1
`

// Exists reports whether a flowline with the given comid exists.
func (s *FlowlineStore) Exists(ctx context.Context, comid int64) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, flowlineExistsSQL, comid).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const flowlinesByComidsBase = `
    SELECT f.nhdplus_comid, f.permanent_identifier, f.reachcode, f.fmeasure, f.tmeasure,
           %s,
           m.uri
    FROM nhdplus.nhdflowline_np21 f
    JOIN unnest($1::bigint[]) WITH ORDINALITY AS nav(comid, ord) ON f.nhdplus_comid = nav.comid
    LEFT JOIN nldi_data.mainstem_lookup m ON m.nhdpv2_comid = f.nhdplus_comid
    ORDER BY nav.ord
`

const plainGeometryExpr = `ST_AsGeoJSON(f.shape, 9, 0)`

const noGeometryExpr = `NULL::text`

// The scaled measure converts a reach measure back to a fraction of the
// line, clamped to [0,1]; a degenerate measure range yields NULL geometry
// rather than an error.
const trimDownstreamExpr = `
    CASE WHEN f.nhdplus_comid = $2
         THEN ST_AsGeoJSON(ST_LineSubstring(f.shape,
              GREATEST(0, LEAST(1, 1 - (($3 - f.fmeasure) / NULLIF(f.tmeasure - f.fmeasure, 0)))), 1), 9, 0)
         ELSE ST_AsGeoJSON(f.shape, 9, 0) END
`

const trimUpstreamExpr = `
    CASE WHEN f.nhdplus_comid = $2
         THEN ST_AsGeoJSON(ST_LineSubstring(f.shape, 0,
              GREATEST(0, LEAST(1, 1 - (($3 - f.fmeasure) / NULLIF(f.tmeasure - f.fmeasure, 0))))), 9, 0)
         ELSE ST_AsGeoJSON(f.shape, 9, 0) END
`

// ByComids returns flowlines in the order of the given comids. When trim
// is non-nil the flowline matching trim.Comid is cut at the trim measure.
// With excludeGeometry the shapes are left out of the query entirely and
// every flowline comes back with nil geometry.
func (s *FlowlineStore) ByComids(ctx context.Context, comids []int64, trim *Trim, excludeGeometry bool) ([]Flowline, error) {
	if len(comids) == 0 {
		return []Flowline{}, nil
	}

	geomExpr := plainGeometryExpr
	args := []any{comids}
	switch {
	case excludeGeometry:
		geomExpr = noGeometryExpr
	case trim != nil:
		if trim.Upstream {
			geomExpr = trimUpstreamExpr
		} else {
			geomExpr = trimDownstreamExpr
		}
		args = append(args, trim.Comid, trim.Measure)
	}
	sql := strings.Replace(flowlinesByComidsBase, "%s", geomExpr, 1)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flowlines := make([]Flowline, 0, len(comids))
	for rows.Next() {
		var fl Flowline
		var geom *string
		if err := rows.Scan(
			&fl.Comid,
			&fl.PermanentIdentifier,
			&fl.Reachcode,
			&fl.FMeasure,
			&fl.TMeasure,
			&geom,
			&fl.MainstemURI,
		); err != nil {
			return nil, err
		}
		if geom != nil {
			fl.Geometry = json.RawMessage(*geom)
		}
		flowlines = append(flowlines, fl)
	}
	return flowlines, rows.Err()
}

const featureFlowlineJoin = `
    FROM nhdplus.nhdflowline_np21 f
    JOIN nldi_data.feature feat
      ON feat.comid = f.nhdplus_comid AND feat.identifier = $2
    JOIN nldi_data.crawler_source cs
      ON lower(cs.source_suffix) = $1 AND feat.crawler_source_id = cs.crawler_source_id
`

const pointAlongFlowlineSQL = `
    SELECT ST_X(pt), ST_Y(pt) FROM (
        SELECT ST_LineInterpolatePoint(f.shape,
               GREATEST(0, LEAST(1, 1 - ((feat.measure - f.fmeasure) / NULLIF(f.tmeasure - f.fmeasure, 0))))) AS pt
` + featureFlowlineJoin + `
    ) q
`

// PointAlongFlowline interpolates the point on the feature's flowline at
// the feature's measure. Returns nil when the feature has no usable
// measure.
func (s *FlowlineStore) PointAlongFlowline(ctx context.Context, suffix, identifier string) (*Point, error) {
	var lon, lat *float64
	err := s.db.QueryRow(ctx, pointAlongFlowlineSQL, strings.ToLower(suffix), identifier).Scan(&lon, &lat)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lon == nil || lat == nil {
		return nil, nil
	}
	return &Point{Lon: *lon, Lat: *lat}, nil
}

const estimatedMeasureSQL = `
    SELECT f.fmeasure + (1 - ST_LineLocatePoint(f.shape, feat.location)) * (f.tmeasure - f.fmeasure)
` + featureFlowlineJoin

// EstimatedMeasure derives a reach measure for a feature from where its
// location projects onto the flowline, for features indexed without one.
func (s *FlowlineStore) EstimatedMeasure(ctx context.Context, suffix, identifier string) (*float64, error) {
	var measure *float64
	err := s.db.QueryRow(ctx, estimatedMeasureSQL, strings.ToLower(suffix), identifier).Scan(&measure)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return measure, nil
}

const measureAtPointSQL = `
    SELECT f.fmeasure + (1 - ST_LineLocatePoint(f.shape, ST_GeomFromText($2, 4269))) * (f.tmeasure - f.fmeasure),
           f.reachcode
    FROM nhdplus.nhdflowline_np21 f
    WHERE f.nhdplus_comid = $1
`

// MeasureAtPoint computes the reach measure and reachcode of the point on
// the comid's flowline closest to the given WKT point.
func (s *FlowlineStore) MeasureAtPoint(ctx context.Context, comid int64, point string) (*float64, *string, error) {
	var measure *float64
	var reachcode *string
	err := s.db.QueryRow(ctx, measureAtPointSQL, comid, point).Scan(&measure, &reachcode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, errs.NotFoundf("no measure found for comid: %d", comid)
	}
	if err != nil {
		return nil, nil, err
	}
	return measure, reachcode, nil
}

const distanceFromFlowlineSQL = `
    SELECT ST_Distance(feat.location::geography, f.shape::geography, false)
` + featureFlowlineJoin

// DistanceFromFlowline measures how far the feature sits from its
// flowline, in meters. Returns nil when either geometry is missing.
func (s *FlowlineStore) DistanceFromFlowline(ctx context.Context, suffix, identifier string) (*float64, error) {
	var meters *float64
	err := s.db.QueryRow(ctx, distanceFromFlowlineSQL, strings.ToLower(suffix), identifier).Scan(&meters)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meters, nil
}

const nearestPointOnFlowlineSQL = `
    SELECT ST_X(pt), ST_Y(pt) FROM (
        SELECT ST_ClosestPoint(f.shape, feat.location) AS pt
` + featureFlowlineJoin + `
    ) q
`

// NearestPointOnFlowline snaps the feature location to the closest point
// on its flowline.
func (s *FlowlineStore) NearestPointOnFlowline(ctx context.Context, suffix, identifier string) (*Point, error) {
	var lon, lat *float64
	err := s.db.QueryRow(ctx, nearestPointOnFlowlineSQL, strings.ToLower(suffix), identifier).Scan(&lon, &lat)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lon == nil || lat == nil {
		return nil, nil
	}
	return &Point{Lon: *lon, Lat: *lat}, nil
}
