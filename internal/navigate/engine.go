package navigate

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/db"
	"github.com/internetofwater/nldi-go/internal/errs"
	"github.com/internetofwater/nldi-go/internal/lookup"
	"github.com/internetofwater/nldi-go/internal/telemetry"
)

// ComidSource is the suffix of the synthetic source whose features are
// NHDPlus flowlines.
const ComidSource = "comid"

// Anchor is the resolved starting point of a navigation: a comid plus,
// for reach-indexed features, the measure along the reach. It lives only
// for the duration of one request.
type Anchor struct {
	Comid      int64
	Measure    *float64
	Reachcode  *string
	Source     string
	Identifier string
}

// Engine runs navigations against the database traversal function.
type Engine struct {
	db        *db.Pool
	flowlines *lookup.FlowlineStore
	features  *lookup.FeatureStore
	metrics   *telemetry.Metrics
	log       *zap.Logger
}

// NewEngine builds a navigation engine over the given stores.
func NewEngine(pool *db.Pool, flowlines *lookup.FlowlineStore, features *lookup.FeatureStore,
	metrics *telemetry.Metrics, log *zap.Logger) *Engine {
	return &Engine{
		db:        pool,
		flowlines: flowlines,
		features:  features,
		metrics:   metrics,
		log:       log.Named("navigate"),
	}
}

const navigateSQL = `
    SELECT comid FROM nhdplus_navigation.navigate($1, $2, $3, $4) AS nav(comid)
`

// Navigate returns the comids reachable from start under the given
// options, in traversal order, deduplicated on first occurrence. An
// empty result is valid: an isolated or sink anchor simply reaches
// nothing.
func (e *Engine) Navigate(ctx context.Context, opts Options, start int64) ([]int64, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var distance *float64
	if opts.Mode != PP {
		d := opts.DistanceKm
		distance = &d
	}

	rows, err := e.db.Query(ctx, navigateSQL, string(opts.Mode), start, distance, opts.StopComid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comids := make([]int64, 0)
	for rows.Next() {
		var comid int64
		if err := rows.Scan(&comid); err != nil {
			return nil, err
		}
		comids = append(comids, comid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	comids = dedupe(comids)
	if e.metrics != nil {
		e.metrics.RecordNavigation(string(opts.Mode))
	}
	e.log.Debug("navigation complete",
		zap.String("mode", string(opts.Mode)),
		zap.Int64("start", start),
		zap.Int("comids", len(comids)))
	return comids, nil
}

// ResolveAnchor converts a source suffix and identifier into a comid
// anchor. For the synthetic comid source the identifier is the comid
// itself and must exist as a flowline; for crawler sources it is the
// feature's snapped comid.
func (e *Engine) ResolveAnchor(ctx context.Context, suffix, identifier string) (*Anchor, error) {
	if suffix == ComidSource {
		comid, err := strconv.ParseInt(identifier, 10, 64)
		if err != nil {
			return nil, errs.InvalidInputf("invalid comid: %s", identifier)
		}
		exists, err := e.flowlines.Exists(ctx, comid)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errs.NotFoundf("no comid found for: %d", comid)
		}
		return &Anchor{Comid: comid, Source: ComidSource, Identifier: identifier}, nil
	}

	feat, err := e.features.ByID(ctx, suffix, identifier)
	if err != nil {
		return nil, err
	}
	if feat.Comid == nil {
		return nil, errs.NotFoundf("feature %s/%s is not indexed to the network", suffix, identifier)
	}
	return &Anchor{
		Comid:      *feat.Comid,
		Measure:    feat.Measure,
		Reachcode:  feat.Reachcode,
		Source:     suffix,
		Identifier: identifier,
	}, nil
}

// Flowlines projects a navigation result onto flowline geometry. When
// trimming is requested and the anchor sits far enough from the reach end,
// the starting flowline is cut at the anchor measure. ExcludeGeometry
// skips the shapes, and with them any trimming.
func (e *Engine) Flowlines(ctx context.Context, anchor *Anchor, opts Options, comids []int64) ([]lookup.Flowline, error) {
	if opts.ExcludeGeometry {
		return e.flowlines.ByComids(ctx, comids, nil, true)
	}
	trim, err := e.trimFor(ctx, anchor, opts)
	if err != nil {
		return nil, err
	}
	return e.flowlines.ByComids(ctx, comids, trim, false)
}

// Features projects a navigation result onto the indexed features of one
// crawler source.
func (e *Engine) Features(ctx context.Context, suffix string, comids []int64) ([]lookup.Feature, error) {
	return e.features.ByComids(ctx, suffix, comids)
}

func (e *Engine) trimFor(ctx context.Context, anchor *Anchor, opts Options) (*lookup.Trim, error) {
	if !opts.TrimStart {
		return nil, nil
	}

	measure := anchor.Measure
	if (measure == nil || *measure == 0) && anchor.Source != ComidSource {
		// Features indexed without a measure still have a location; derive
		// the measure from where it projects onto the flowline.
		est, err := e.flowlines.EstimatedMeasure(ctx, anchor.Source, anchor.Identifier)
		if err != nil {
			return nil, err
		}
		measure = est
	}
	if measure == nil {
		return nil, nil
	}

	tolerance := opts.TrimTolerance
	if tolerance == 0 {
		tolerance = DefaultTrimTolerance
	}
	if 100-*measure < tolerance {
		return nil, nil
	}

	return &lookup.Trim{
		Comid:    anchor.Comid,
		Measure:  *measure,
		Upstream: opts.Mode.Upstream(),
	}, nil
}

// dedupe removes repeated comids, keeping the first occurrence so the
// traversal order survives.
func dedupe(comids []int64) []int64 {
	seen := make(map[int64]struct{}, len(comids))
	out := comids[:0]
	for _, comid := range comids {
		if _, dup := seen[comid]; dup {
			continue
		}
		seen[comid] = struct{}{}
		out = append(out, comid)
	}
	return out
}
