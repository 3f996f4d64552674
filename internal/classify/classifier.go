// Package classify enriches raw permit and variance records with resolved
// unit counts and geographic assignment.
package classify

import (
	"context"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phlwatch/digest-cli/internal/geoindex"
	"github.com/phlwatch/digest-cli/internal/model"
	"github.com/phlwatch/digest-cli/internal/units"
)

// Classifier composes unit extraction and neighborhood lookup. It holds no
// mutable state: the same raw record and the same index always produce the
// same classified record.
type Classifier struct {
	index *geoindex.Index // nil when boundary data is unavailable
}

// New creates a Classifier over an immutable boundary index. A nil index is
// valid: neighborhood enrichment is best-effort, and classification then
// assigns no neighborhood to any record instead of failing the pipeline.
func New(index *geoindex.Index) *Classifier {
	if index == nil {
		zap.L().Warn("classify: no boundary index, neighborhoods will be unassigned")
	}
	return &Classifier{index: index}
}

// Classify derives the classified record for one raw record. No network,
// no I/O, no mutation of the input.
func (c *Classifier) Classify(raw model.RawRecord) model.ClassifiedRecord {
	resolved := units.Extract(raw.RawUnits, raw.Description)
	if resolved.Ambiguous {
		zap.L().Warn("classify: ambiguous unit count, parenthetical digit used",
			zap.String("record", raw.ID),
			zap.String("address", raw.Address),
		)
	}

	var neighborhood string
	if c.index != nil && raw.Coord.Valid() {
		if name, ok := c.index.Locate(raw.Coord.X, raw.Coord.Y); ok {
			neighborhood = name
		}
	}

	district := strings.TrimSpace(raw.District)
	if district == "" {
		district = model.DistrictUnknown
	}

	return model.ClassifiedRecord{
		RawRecord:    raw,
		Units:        resolved,
		Neighborhood: neighborhood,
		District:     district,
	}
}

// ClassifyAll classifies a batch in parallel. Workers share the same
// immutable index, so no synchronization is needed beyond the group itself,
// and the output preserves input order.
func (c *Classifier) ClassifyAll(ctx context.Context, records []model.RawRecord) ([]model.ClassifiedRecord, error) {
	out := make([]model.ClassifiedRecord, len(records))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, raw := range records {
		g.Go(func() error {
			out[i] = c.Classify(raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
