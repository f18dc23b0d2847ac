// Package source manages the crawler source catalog: the nldi_data rows
// describing where linked features were ingested from, an in-memory
// registry for request-time lookups, and the align operation that keeps
// the table in sync with configuration.
package source

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/config"
	"github.com/internetofwater/nldi-go/internal/db"
	"github.com/internetofwater/nldi-go/internal/errs"
)

// Source is one crawler_source row.
type Source struct {
	ID             int
	Name           string
	Suffix         string
	URI            string
	FeatureID      string
	FeatureName    string
	FeatureURI     string
	FeatureReach   *string
	FeatureMeasure *string
	IngestType     *string
	FeatureType    *string
}

// Store reads and writes nldi_data.crawler_source.
type Store struct {
	db  *db.Pool
	log *zap.Logger
}

// NewStore builds a crawler source store.
func NewStore(pool *db.Pool, log *zap.Logger) *Store {
	return &Store{db: pool, log: log.Named("source")}
}

const loadSourcesSQL = `
    SELECT crawler_source_id, source_name, source_suffix, source_uri,
           feature_id, feature_name, feature_uri, feature_reach,
           feature_measure, ingest_type, feature_type
    FROM nldi_data.crawler_source
    ORDER BY crawler_source_id
`

// LoadAll returns every crawler source ordered by id.
func (s *Store) LoadAll(ctx context.Context) ([]Source, error) {
	rows, err := s.db.Query(ctx, loadSourcesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]Source, 0)
	for rows.Next() {
		var src Source
		if err := rows.Scan(
			&src.ID,
			&src.Name,
			&src.Suffix,
			&src.URI,
			&src.FeatureID,
			&src.FeatureName,
			&src.FeatureURI,
			&src.FeatureReach,
			&src.FeatureMeasure,
			&src.IngestType,
			&src.FeatureType,
		); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

const alignSourceSQL = `
    INSERT INTO nldi_data.crawler_source (
        crawler_source_id, source_name, source_suffix, source_uri,
        feature_id, feature_name, feature_uri, feature_reach,
        feature_measure, ingest_type, feature_type
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    ON CONFLICT (crawler_source_id) DO UPDATE SET
        source_name = EXCLUDED.source_name,
        source_suffix = EXCLUDED.source_suffix,
        source_uri = EXCLUDED.source_uri,
        feature_id = EXCLUDED.feature_id,
        feature_name = EXCLUDED.feature_name,
        feature_uri = EXCLUDED.feature_uri,
        feature_reach = EXCLUDED.feature_reach,
        feature_measure = EXCLUDED.feature_measure,
        ingest_type = EXCLUDED.ingest_type,
        feature_type = EXCLUDED.feature_type
`

// Align upserts the configured sources by id inside one transaction.
// Suffixes are stored lower case. Rows absent from the configuration are
// left alone, so rerunning align is always safe.
func (s *Store) Align(ctx context.Context, sources []config.Source) error {
	if len(sources) == 0 {
		s.log.Info("no sources configured, nothing to align")
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, src := range sources {
		suffix := strings.ToLower(src.SourceSuffix)
		if _, err := tx.Exec(ctx, alignSourceSQL,
			src.ID,
			src.SourceName,
			suffix,
			src.SourceURI,
			src.FeatureID,
			src.FeatureName,
			src.FeatureURI,
			nullable(src.FeatureReach),
			nullable(src.FeatureMeasure),
			nullable(src.IngestType),
			nullable(src.FeatureType),
		); err != nil {
			return errs.Wrap(errs.Internal, err, "aligning source %s", suffix)
		}
		s.log.Info("aligned crawler source",
			zap.Int("id", src.ID), zap.String("suffix", suffix))
	}
	return tx.Commit(ctx)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
