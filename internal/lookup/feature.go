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

// Feature is one nldi_data.feature row joined with its crawler source and
// mainstem annotation. Nil pointers mean the column was null.
type Feature struct {
	Identifier   string
	Name         *string
	URI          *string
	Comid        *int64
	Reachcode    *string
	Measure      *float64
	SourceSuffix string
	SourceName   string
	FeatureType  *string
	Lon          *float64
	Lat          *float64
	Geometry     json.RawMessage
	MainstemURI  *string
}

// FeatureStore reads indexed features from the shared feature table.
type FeatureStore struct {
	db  *db.Pool
	log *zap.Logger
}

// NewFeatureStore builds a feature store.
func NewFeatureStore(pool *db.Pool, log *zap.Logger) *FeatureStore {
	return &FeatureStore{db: pool, log: log.Named("feature")}
}

const featureColumns = `
    SELECT feat.identifier, feat.name, feat.uri, feat.comid, feat.reachcode, feat.measure,
           cs.source_suffix, cs.source_name, cs.feature_type,
           ST_X(feat.location), ST_Y(feat.location),
           ST_AsGeoJSON(feat.location, 9, 0),
           m.uri
    FROM nldi_data.feature feat
    JOIN nldi_data.crawler_source cs ON feat.crawler_source_id = cs.crawler_source_id
    LEFT JOIN nldi_data.mainstem_lookup m ON m.nhdpv2_comid = feat.comid
`

const featureByIDSQL = featureColumns + `
    WHERE lower(cs.source_suffix) = $1 AND feat.identifier = $2
`

// ByID returns one feature of a source. The suffix is matched
// case-insensitively, the identifier exactly.
func (s *FeatureStore) ByID(ctx context.Context, suffix, identifier string) (*Feature, error) {
	row := s.db.QueryRow(ctx, featureByIDSQL, strings.ToLower(suffix), identifier)
	feat, err := scanFeature(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFoundf("no such feature: %s/%s", suffix, identifier)
	}
	if err != nil {
		return nil, err
	}
	return feat, nil
}

const featuresBySourceSQL = featureColumns + `
    WHERE lower(cs.source_suffix) = $1
    ORDER BY feat.identifier
    LIMIT $2 OFFSET $3
`

// BySource returns one page of a source's features in ascending
// identifier order.
func (s *FeatureStore) BySource(ctx context.Context, suffix string, limit, offset int) ([]Feature, error) {
	rows, err := s.db.Query(ctx, featuresBySourceSQL, strings.ToLower(suffix), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeatures(rows)
}

const countBySourceSQL = `
    SELECT count(*)
    FROM nldi_data.feature feat
    JOIN nldi_data.crawler_source cs ON feat.crawler_source_id = cs.crawler_source_id
    WHERE lower(cs.source_suffix) = $1
`

// CountBySource returns the number of features indexed for a source.
func (s *FeatureStore) CountBySource(ctx context.Context, suffix string) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countBySourceSQL, strings.ToLower(suffix)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

const featuresByComidsSQL = featureColumns + `
    JOIN unnest($2::bigint[]) WITH ORDINALITY AS nav(comid, ord) ON feat.comid = nav.comid
    WHERE lower(cs.source_suffix) = $1
    ORDER BY nav.ord, feat.identifier
`

// ByComids returns the features of a source that sit on the given comids,
// in navigation order, then identifier.
func (s *FeatureStore) ByComids(ctx context.Context, suffix string, comids []int64) ([]Feature, error) {
	if len(comids) == 0 {
		return []Feature{}, nil
	}
	rows, err := s.db.Query(ctx, featuresByComidsSQL, strings.ToLower(suffix), comids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeatures(rows)
}

func scanFeature(row pgx.Row) (*Feature, error) {
	var f Feature
	var geom *string
	err := row.Scan(
		&f.Identifier,
		&f.Name,
		&f.URI,
		&f.Comid,
		&f.Reachcode,
		&f.Measure,
		&f.SourceSuffix,
		&f.SourceName,
		&f.FeatureType,
		&f.Lon,
		&f.Lat,
		&geom,
		&f.MainstemURI,
	)
	if err != nil {
		return nil, err
	}
	if geom != nil {
		f.Geometry = json.RawMessage(*geom)
	}
	return &f, nil
}

func collectFeatures(rows pgx.Rows) ([]Feature, error) {
	features := make([]Feature, 0)
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, *f)
	}
	return features, rows.Err()
}
