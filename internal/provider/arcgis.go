// Package provider fetches permit and variance rows from the city's ArcGIS
// FeatureServer endpoints and normalizes them into raw records. It is the
// only component that talks to the upstream data source; classification
// never fetches.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/phlwatch/digest-cli/internal/model"
)

// Options configures the ArcGIS client.
type Options struct {
	PermitsURL string
	AppealsURL string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RPS        float64
}

// Client queries the city's ArcGIS FeatureServer with rate limiting and
// retry. Geometry is requested in WGS84 (outSR=4326) so downstream
// neighborhood lookups need no reprojection.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
}

// NewClient creates a Client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "digest-cli/1.0"
	}
	if opts.RPS == 0 {
		opts.RPS = 4
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), int(math.Ceil(opts.RPS))),
		opts:       opts,
	}
}

type feature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"geometry"`
}

type queryResponse struct {
	Features []feature `json:"features"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// query executes one FeatureServer query, filling in the defaults every
// call shares.
func (c *Client) query(ctx context.Context, baseURL string, params url.Values) ([]feature, error) {
	params.Set("f", "json")
	if params.Get("outFields") == "" {
		params.Set("outFields", "*")
	}
	if params.Get("returnGeometry") == "" {
		params.Set("returnGeometry", "true")
		params.Set("outSR", "4326")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "provider: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "provider: read response")
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, eris.Wrap(err, "provider: parse response")
	}
	if qr.Error != nil {
		return nil, eris.Errorf("provider: arcgis error: %s", qr.Error.Message)
	}
	return qr.Features, nil
}

func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := range c.opts.MaxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "provider: rate limiter wait")
		}

		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			zap.L().Warn("provider: request failed, retrying",
				zap.String("url", req.URL.Path),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("provider: http %d from %s", resp.StatusCode, req.URL.Path)
			zap.L().Warn("provider: server error, retrying",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			c.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, eris.Errorf("provider: unexpected status %d from %s", resp.StatusCode, req.URL.Path)
		}
		return resp, nil
	}
	return nil, eris.Wrap(lastErr, "provider: all retries exhausted")
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(time.Second) * math.Pow(2, float64(attempt)))
	if d > 15*time.Second {
		d = 15 * time.Second
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Permits returns residential permits filed since the given time: new
// construction plus change-of-use conversions to residential. Conversions
// are queried regardless of the commercial/residential flag because
// conversions TO residential arrive marked "Commercial"; the scope text is
// what identifies them. Rows are deduplicated by permit number, keeping
// the latest issue date, and returned oldest first.
func (c *Client) Permits(ctx context.Context, since time.Time) ([]model.RawRecord, error) {
	where := fmt.Sprintf(
		"((commercialorresidential = 'Residential' AND typeofwork = 'New Construction') OR (typeofwork = 'Change of Use')) AND permitissuedate >= TIMESTAMP '%s'",
		since.Format("2006-01-02 15:04:05"),
	)
	params := url.Values{}
	params.Set("where", where)
	params.Set("outFields", "permitnumber,address,council_district,permittype,typeofwork,numberofunits,contractorname,approvedscopeofwork,permitissuedate,permitdescription,commercialorresidential")
	params.Set("orderByFields", "permitissuedate ASC")

	features, err := c.query(ctx, c.opts.PermitsURL, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: query permits")
	}

	var records []model.RawRecord
	for _, f := range features {
		typeOfWork := attrString(f.Attributes, "typeofwork")
		scope := attrString(f.Attributes, "approvedscopeofwork")
		if typeOfWork == "Change of Use" && !strings.Contains(strings.ToLower(scope), "residential") {
			continue
		}

		description := scope
		if extra := attrString(f.Attributes, "permitdescription"); extra != "" {
			description = strings.TrimSpace(description + "\n" + extra)
		}

		records = append(records, model.RawRecord{
			ID:          attrString(f.Attributes, "permitnumber"),
			Type:        model.RecordTypePermit,
			Address:     attrString(f.Attributes, "address"),
			Developer:   attrString(f.Attributes, "contractorname"),
			RawUnits:    attrString(f.Attributes, "numberofunits"),
			Description: description,
			Coord:       featureCoord(f),
			District:    attrString(f.Attributes, "council_district"),
			Filed:       attrTime(f.Attributes, "permitissuedate"),
			PermitType:  attrString(f.Attributes, "permittype"),
		})
	}

	records = dedupe(records)
	zap.L().Info("provider: permits fetched",
		zap.Int("count", len(records)),
		zap.Time("since", since),
	)
	return records, nil
}

// Appeals returns zoning variance applications filed since the given time,
// deduplicated by appeal number.
func (c *Client) Appeals(ctx context.Context, since time.Time) ([]model.RawRecord, error) {
	where := fmt.Sprintf(
		"createddate >= TIMESTAMP '%s' AND (UPPER(applicationtype) LIKE '%%ZBA%%' OR UPPER(appealtype) LIKE '%%VARIANCE%%' OR UPPER(appealgrounds) LIKE '%%VARIANCE%%')",
		since.Format("2006-01-02 15:04:05"),
	)
	params := url.Values{}
	params.Set("where", where)
	params.Set("outFields", "appealnumber,address,council_district,appealtype,applicationtype,appealgrounds,createddate,primaryappellant")
	params.Set("orderByFields", "createddate ASC")

	features, err := c.query(ctx, c.opts.AppealsURL, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: query appeals")
	}

	var records []model.RawRecord
	for _, f := range features {
		records = append(records, model.RawRecord{
			ID:          attrString(f.Attributes, "appealnumber"),
			Type:        model.RecordTypeVariance,
			Address:     attrString(f.Attributes, "address"),
			Developer:   attrString(f.Attributes, "primaryappellant"),
			Description: attrString(f.Attributes, "appealgrounds"),
			Coord:       featureCoord(f),
			District:    attrString(f.Attributes, "council_district"),
			Filed:       attrTime(f.Attributes, "createddate"),
			PermitType:  attrString(f.Attributes, "appealtype"),
		})
	}

	records = dedupe(records)
	zap.L().Info("provider: appeals fetched",
		zap.Int("count", len(records)),
		zap.Time("since", since),
	)
	return records, nil
}

// Freshness reports the most recent permit and appeal timestamps upstream,
// so stale source data can be flagged in the digest rather than silently
// producing empty sections.
func (c *Client) Freshness(ctx context.Context) (lastPermit, lastAppeal time.Time, err error) {
	lastPermit, err = c.latest(ctx, c.opts.PermitsURL, "permitissuedate")
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrap(err, "provider: permit freshness")
	}
	lastAppeal, err = c.latest(ctx, c.opts.AppealsURL, "createddate")
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrap(err, "provider: appeal freshness")
	}
	return lastPermit, lastAppeal, nil
}

func (c *Client) latest(ctx context.Context, baseURL, dateField string) (time.Time, error) {
	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("outFields", dateField)
	params.Set("orderByFields", dateField+" DESC")
	params.Set("resultRecordCount", "1")
	params.Set("returnGeometry", "false")

	features, err := c.query(ctx, baseURL, params)
	if err != nil {
		return time.Time{}, err
	}
	if len(features) == 0 {
		return time.Time{}, nil
	}
	return attrTime(features[0].Attributes, dateField), nil
}

// dedupe keeps one record per identifier, preferring the latest filing
// date, and preserves first-seen order otherwise.
func dedupe(records []model.RawRecord) []model.RawRecord {
	seen := make(map[string]int, len(records))
	var out []model.RawRecord
	for _, r := range records {
		if r.ID == "" {
			out = append(out, r)
			continue
		}
		if i, ok := seen[r.ID]; ok {
			if r.Filed.After(out[i].Filed) {
				out[i] = r
			}
			continue
		}
		seen[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

func featureCoord(f feature) model.Coordinate {
	if f.Geometry == nil {
		return model.Coordinate{}
	}
	return model.Coordinate{X: f.Geometry.X, Y: f.Geometry.Y}
}

// attrString normalizes an attribute to a trimmed string; numeric unit and
// district fields arrive as JSON numbers.
func attrString(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// attrTime converts an epoch-milliseconds attribute to UTC time.
func attrTime(attrs map[string]any, key string) time.Time {
	v, ok := attrs[key].(float64)
	if !ok || v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(v)).UTC()
}
