// Package navigate answers reachability questions about the NHDPlus flow
// network. Graph traversal itself is delegated to the database function
// nhdplus_navigation.navigate; this package validates requests, resolves
// starting anchors, and projects comid sets onto flowlines and features.
package navigate

import (
	"strings"

	"github.com/internetofwater/nldi-go/internal/errs"
)

// Mode is a navigation direction.
type Mode string

const (
	// UM walks upstream on the main channel.
	UM Mode = "UM"
	// UT walks upstream including tributaries.
	UT Mode = "UT"
	// DM walks downstream on the main channel.
	DM Mode = "DM"
	// DD walks downstream including diversions.
	DD Mode = "DD"
	// PP walks from a start comid to a downstream stop comid.
	PP Mode = "PP"
)

// Modes lists every navigation mode in presentation order.
var Modes = []Mode{UM, UT, DM, DD, PP}

// ParseMode matches a mode case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(s)) {
	case UM:
		return UM, nil
	case UT:
		return UT, nil
	case DM:
		return DM, nil
	case DD:
		return DD, nil
	case PP:
		return PP, nil
	default:
		return "", errs.InvalidInputf("invalid navigation mode: %s", s)
	}
}

// Upstream reports whether the mode walks against the flow direction.
func (m Mode) Upstream() bool {
	return m == UM || m == UT
}

// Description returns the human name of the mode.
func (m Mode) Description() string {
	switch m {
	case UM:
		return "Upstream navigation on the Main channel"
	case UT:
		return "Upstream navigation with Tributaries"
	case DM:
		return "Downstream navigation on the Main channel"
	case DD:
		return "Downstream navigation with Diversions"
	case PP:
		return "Point-to-Point navigation to a downstream stop comid"
	default:
		return string(m)
	}
}
