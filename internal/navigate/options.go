package navigate

import (
	"math"

	"github.com/internetofwater/nldi-go/internal/errs"
)

// DefaultTrimTolerance is the minimum distance from the reach end, in
// measure units, below which trimming the starting flowline is skipped.
const DefaultTrimTolerance = 0.1

// maxDistanceKm is the exclusive upper bound on the distance budget.
const maxDistanceKm = 10_000

// Options describes one navigation request. ExcludeGeometry drops the
// flowline shapes from the projection; the features keep null geometry.
type Options struct {
	Mode            Mode
	DistanceKm      float64
	StopComid       *int64
	TrimStart       bool
	TrimTolerance   float64
	ExcludeGeometry bool
}

// Validate enforces the parameter rules: distance strictly inside
// (0, 10000) for the four directional modes, a stop comid required for PP
// and accepted only for DM and PP.
func (o Options) Validate() error {
	switch o.Mode {
	case PP:
		if o.StopComid == nil {
			return errs.InvalidInputf("stopComid is required for PP navigation")
		}
	case UM, UT, DD, DM:
		if o.Mode != DM && o.StopComid != nil {
			return errs.InvalidInputf("stopComid is only valid for DM and PP navigation")
		}
		if math.IsNaN(o.DistanceKm) || o.DistanceKm <= 0 || o.DistanceKm >= maxDistanceKm {
			return errs.InvalidInputf("distance must be between 0 and %d kilometers, exclusive", maxDistanceKm)
		}
	default:
		return errs.InvalidInputf("invalid navigation mode: %s", o.Mode)
	}
	if o.TrimTolerance < 0 || o.TrimTolerance > 100 {
		return errs.InvalidInputf("trimTolerance must be between 0 and 100")
	}
	return nil
}
