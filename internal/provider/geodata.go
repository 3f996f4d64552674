package provider

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Boundary dataset sources. Neighborhood boundaries come from the
// OpenDataPhilly mirror; council districts from the city's CARTO endpoint,
// both as GeoJSON in WGS84.
const (
	NeighborhoodsURL    = "https://raw.githubusercontent.com/opendataphilly/open-geo-data/master/philadelphia-neighborhoods/philadelphia-neighborhoods.geojson"
	CouncilDistrictsURL = "https://phl.carto.com/api/v2/sql?q=SELECT%20*%20FROM%20council_districts_2024&format=geojson"
)

// DownloadBoundaries fetches a boundary dataset to a local cache path,
// creating the directory if needed. The cached file is what geoindex loads
// at startup; downloading is a separate, explicit step so digest runs
// never block on the boundary host.
func DownloadBoundaries(ctx context.Context, client *http.Client, rawURL, dest string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "provider: create boundary request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "provider: download boundaries")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("provider: boundary download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrap(err, "provider: create geodata dir")
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "provider: create boundary file")
	}
	defer f.Close() //nolint:errcheck

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return eris.Wrap(err, "provider: write boundary file")
	}

	zap.L().Info("provider: boundaries downloaded",
		zap.String("dest", dest),
		zap.Int64("bytes", n),
	)
	return nil
}
