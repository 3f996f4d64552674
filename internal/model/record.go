package model

import (
	"strconv"
	"time"
)

// RecordType distinguishes by-right permits from variance appeals.
type RecordType string

const (
	RecordTypePermit   RecordType = "permit"
	RecordTypeVariance RecordType = "variance"
)

// UnitSource records where a resolved unit count came from.
type UnitSource string

const (
	UnitSourceField       UnitSource = "field"              // structured field on the record
	UnitSourceExtracted   UnitSource = "extracted"          // inferred from description text
	UnitSourceMultiFamily UnitSource = "zoning_multifamily" // bare multi-family keyword, count unknown
	UnitSourceUnknown     UnitSource = "unknown"
)

// UnitCount is the resolved residential unit count for a record. It is a
// tagged tri-state rather than a nullable integer: a count whose source is
// unknown (or bare multi-family) carries no usable N and never satisfies a
// numeric threshold, but the record is still listed in unfiltered output.
type UnitCount struct {
	N         int        `json:"n,omitempty"`
	Source    UnitSource `json:"source"`
	Ambiguous bool       `json:"ambiguous,omitempty"` // spelled-out and parenthetical digits disagreed
}

// UnknownUnits returns the explicit unknown sentinel.
func UnknownUnits() UnitCount { return UnitCount{Source: UnitSourceUnknown} }

// MultiFamilyUnits returns the sentinel for a bare multi-family keyword:
// at least two units, exact count unresolved.
func MultiFamilyUnits() UnitCount { return UnitCount{Source: UnitSourceMultiFamily} }

// Known reports whether the count carries a usable integer.
func (u UnitCount) Known() bool {
	return u.Source == UnitSourceField || u.Source == UnitSourceExtracted
}

// AtLeast reports whether the count satisfies a minimum-units threshold.
// Unknown counts never satisfy a threshold.
func (u UnitCount) AtLeast(minUnits int) bool { return u.Known() && u.N >= minUnits }

// MultiFamily reports whether the record is known multi-family even though
// the exact count is unresolved.
func (u UnitCount) MultiFamily() bool { return u.Source == UnitSourceMultiFamily }

func (u UnitCount) String() string {
	switch u.Source {
	case UnitSourceMultiFamily:
		return "Unknown (Multi-Family)"
	case UnitSourceUnknown:
		return "N/A"
	default:
		return strconv.Itoa(u.N)
	}
}

// DistrictUnknown is the grouping bucket for records without a council
// district, so grouping logic always has a non-empty key.
const DistrictUnknown = "Unknown"

// Coordinate is a lon/lat pair in WGS84. Zero ordinates are treated as
// missing, matching the upstream sentinel for failed geocodes.
type Coordinate struct {
	X float64 `json:"x"` // longitude
	Y float64 `json:"y"` // latitude
}

// Valid reports whether the coordinate can be used for a boundary lookup.
func (c Coordinate) Valid() bool { return c.X != 0 && c.Y != 0 }

// RawRecord is one permit or variance row as returned by the record
// provider. Immutable once received.
type RawRecord struct {
	ID          string     `json:"id"`
	Type        RecordType `json:"type"`
	Address     string     `json:"address"`
	Developer   string     `json:"developer,omitempty"` // contractor or primary appellant
	RawUnits    string     `json:"raw_units,omitempty"` // structured unit field, frequently blank
	Description string     `json:"description,omitempty"`
	Coord       Coordinate `json:"coord"`
	District    string     `json:"district,omitempty"` // raw council district, may be blank
	Filed       time.Time  `json:"filed"`
	PermitType  string     `json:"permit_type,omitempty"`
}

// ClassifiedRecord is a RawRecord enriched with its resolved unit count and
// geographic assignment. Derived once, never mutated; one per raw record.
// Neighborhood is empty only when no boundary contains the coordinate or no
// coordinate exists. District is never empty, defaulting to DistrictUnknown.
type ClassifiedRecord struct {
	RawRecord
	Units        UnitCount `json:"units"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	District     string    `json:"council_district"`
}
