package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testButtondown(t *testing.T, baseURL string) *ButtondownClient {
	t.Helper()
	c, err := NewButtondown(ButtondownOptions{
		APIKey:  "test-key",
		BaseURL: baseURL,
		RPS:     1000,
	})
	require.NoError(t, err)
	return c
}

func TestNewButtondown_RequiresKey(t *testing.T) {
	_, err := NewButtondown(ButtondownOptions{})
	assert.Error(t, err)
}

func TestSubscribers_PaginatesAndDecodesMetadata(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))

		if r.URL.Path == "/subscribers" {
			_, _ = w.Write([]byte(`{
			  "results": [
			    {
			      "email": "fishtown@example.com",
			      "subscriber_type": "regular",
			      "metadata": {"neighborhoods": ["Fishtown"], "frequency": "daily"}
			    },
			    {
			      "email": "string-meta@example.com",
			      "subscriber_type": "regular",
			      "metadata": "{\"districts\": [\"1\"], \"frequency\": \"daily\"}"
			    }
			  ],
			  "next": "` + srv.URL + `/subscribers-page2"
			}`))
			return
		}

		_, _ = w.Write([]byte(`{
		  "results": [
		    {"email": "unsubscribed@example.com", "subscriber_type": "unactivated"},
		    {"email": "broken-meta@example.com", "subscriber_type": "regular", "metadata": "not json"}
		  ]
		}`))
	}))
	defer srv.Close()

	c := testButtondown(t, srv.URL)
	subs, err := c.Subscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 4)

	assert.Equal(t, []string{"Fishtown"}, subs[0].Preference.Neighborhoods)
	assert.Equal(t, model.FrequencyDaily, subs[0].Preference.Frequency)
	assert.True(t, subs[0].Active)

	// Metadata arriving as an encoded string decodes the same way.
	assert.Equal(t, []string{"1"}, subs[1].Preference.Districts)

	assert.False(t, subs[2].Active)

	// Broken metadata degrades to citywide weekly, never an error.
	assert.Empty(t, subs[3].Preference.Neighborhoods)
	assert.Equal(t, model.FrequencyWeekly, subs[3].Preference.Frequency)
}

func TestSend_PostsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := testButtondown(t, srv.URL)
	err := c.Send(context.Background(), Email{
		Subject:    "Fishtown Development Daily",
		Body:       "# digest",
		Recipients: []string{"a@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Fishtown Development Daily", got["subject"])
	assert.Equal(t, "public", got["email_type"])
	assert.Equal(t, []any{"a@example.com"}, got["recipients"])
}

func TestSend_SurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail": "invalid token"}`))
	}))
	defer srv.Close()

	c := testButtondown(t, srv.URL)
	err := c.Send(context.Background(), Email{Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid token")
}

func TestLoadSubscribersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subscribers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subscribers:
  - email: fishtown@example.com
    neighborhoods: [Fishtown, "Northern Liberties"]
    frequency: daily
  - email: district1@example.com
    districts: ["1"]
    active: false
  - email: ""
  - email: citywide@example.com
`), 0o644))

	subs, err := LoadSubscribersFile(path)
	require.NoError(t, err)
	require.Len(t, subs, 3)

	assert.Equal(t, "fishtown@example.com", subs[0].Email)
	assert.Equal(t, []string{"Fishtown", "Northern Liberties"}, subs[0].Preference.Neighborhoods)
	assert.Equal(t, model.FrequencyDaily, subs[0].Preference.Frequency)
	assert.True(t, subs[0].Active)

	assert.False(t, subs[1].Active)
	assert.Equal(t, model.FrequencyWeekly, subs[1].Preference.Frequency)

	assert.True(t, subs[2].Active)
	assert.Empty(t, subs[2].Preference.Neighborhoods)
}

func TestLoadSubscribersFile_Missing(t *testing.T) {
	_, err := LoadSubscribersFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
