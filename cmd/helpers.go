package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phlwatch/digest-cli/internal/classify"
	"github.com/phlwatch/digest-cli/internal/delivery"
	"github.com/phlwatch/digest-cli/internal/geoindex"
	"github.com/phlwatch/digest-cli/internal/model"
	"github.com/phlwatch/digest-cli/internal/provider"
	"github.com/phlwatch/digest-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newProviderClient() *provider.Client {
	return provider.NewClient(provider.Options{
		PermitsURL: cfg.Provider.PermitsURL,
		AppealsURL: cfg.Provider.AppealsURL,
		UserAgent:  cfg.Provider.UserAgent,
		Timeout:    time.Duration(cfg.Provider.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Provider.MaxRetries,
		RPS:        cfg.Provider.RPS,
	})
}

// loadBoundaryIndex loads one boundary dataset, degrading to nil when the
// file is missing so a run without downloaded geodata still produces a
// digest, just without that layer of assignment.
func loadBoundaryIndex(file string) *geoindex.Index {
	path := filepath.Join(cfg.Geodata.Dir, file)

	var boundaries []geoindex.Boundary
	var err error
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		boundaries, err = geoindex.LoadShapefile(path, cfg.Geodata.ShapefileNameField)
	} else {
		boundaries, err = geoindex.LoadGeoJSON(path)
	}
	if err == nil {
		var idx *geoindex.Index
		if idx, err = geoindex.Build(boundaries); err == nil {
			return idx
		}
	}
	zap.L().Warn("boundary data unavailable, continuing without it",
		zap.String("path", path),
		zap.Error(err),
	)
	return nil
}

// backfillDistricts assigns a council district from boundary containment
// for records whose source row carried none.
func backfillDistricts(records []model.ClassifiedRecord, districts *geoindex.Index) {
	if districts == nil {
		return
	}
	for i := range records {
		if records[i].District != model.DistrictUnknown || !records[i].Coord.Valid() {
			continue
		}
		if name, ok := districts.Locate(records[i].Coord.X, records[i].Coord.Y); ok {
			records[i].District = name
		}
	}
}

// fetchClassified pulls permits and appeals concurrently and classifies
// both sets.
func fetchClassified(ctx context.Context, client *provider.Client, since time.Time) (permits, variances []model.ClassifiedRecord, err error) {
	var rawPermits, rawAppeals []model.RawRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawPermits, err = client.Permits(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		rawAppeals, err = client.Appeals(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, eris.Wrap(err, "fetch records")
	}

	neighborhoods := loadBoundaryIndex(cfg.Geodata.NeighborhoodsFile)
	districts := loadBoundaryIndex(cfg.Geodata.DistrictsFile)
	classifier := classify.New(neighborhoods)

	permits, err = classifier.ClassifyAll(ctx, rawPermits)
	if err != nil {
		return nil, nil, eris.Wrap(err, "classify permits")
	}
	variances, err = classifier.ClassifyAll(ctx, rawAppeals)
	if err != nil {
		return nil, nil, eris.Wrap(err, "classify appeals")
	}

	backfillDistricts(permits, districts)
	backfillDistricts(variances, districts)
	return permits, variances, nil
}

// freshnessWarnings checks how stale the upstream datasets are. A warning
// is informational; an error talking to the source is swallowed into a
// warning too, since the digest body is still worth producing.
func freshnessWarnings(ctx context.Context, client *provider.Client, now time.Time) []string {
	lastPermit, lastAppeal, err := client.Freshness(ctx)
	if err != nil {
		return []string{"⚠️ Could not verify data freshness: " + err.Error()}
	}

	threshold := time.Duration(cfg.Digest.FreshnessWarningDays) * 24 * time.Hour
	var warnings []string
	if !lastPermit.IsZero() && now.Sub(lastPermit) > threshold {
		warnings = append(warnings, fmt.Sprintf(
			"⚠️ Permit data may be delayed: most recent permit is %d days old",
			int(now.Sub(lastPermit).Hours()/24)))
	}
	if !lastAppeal.IsZero() && now.Sub(lastAppeal) > threshold {
		warnings = append(warnings, fmt.Sprintf(
			"⚠️ Appeal data may be delayed: most recent appeal is %d days old",
			int(now.Sub(lastAppeal).Hours()/24)))
	}
	return warnings
}

// loadSubscribers prefers the Buttondown list and falls back to the local
// YAML file when no API key is configured.
func loadSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	if cfg.Buttondown.APIKey != "" {
		client, err := newButtondown()
		if err != nil {
			return nil, err
		}
		return client.Subscribers(ctx)
	}
	return delivery.LoadSubscribersFile(cfg.Subscribers.File)
}

func newButtondown() (*delivery.ButtondownClient, error) {
	return delivery.NewButtondown(delivery.ButtondownOptions{
		APIKey:  cfg.Buttondown.APIKey,
		BaseURL: cfg.Buttondown.BaseURL,
		RPS:     cfg.Buttondown.RPS,
	})
}
