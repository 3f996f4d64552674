package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlwatch/digest-cli/internal/model"
)

type recordingSender struct {
	emails []Email
	err    error
}

func (r *recordingSender) Send(_ context.Context, email Email) error {
	if r.err != nil {
		return r.err
	}
	r.emails = append(r.emails, email)
	return nil
}

func subscriber(email string, pref model.Preference) model.Subscriber {
	if pref.Frequency == "" {
		pref.Frequency = model.FrequencyDaily
	}
	return model.Subscriber{Email: email, Preference: pref, Active: true}
}

func classifiedPermit(id, neighborhood, district string) model.ClassifiedRecord {
	return model.ClassifiedRecord{
		RawRecord:    model.RawRecord{ID: id, Type: model.RecordTypePermit, Address: id + " ST"},
		Units:        model.UnitCount{N: 6, Source: model.UnitSourceExtracted},
		Neighborhood: neighborhood,
		District:     district,
	}
}

var dispatchNow = time.Date(2025, 8, 25, 8, 0, 0, 0, time.UTC)

func TestDispatch_GroupsByPreference(t *testing.T) {
	subs := []model.Subscriber{
		subscriber("citywide@example.com", model.Preference{}),
		subscriber("fishtown@example.com", model.Preference{Neighborhoods: []string{"Fishtown"}}),
		subscriber("district5@example.com", model.Preference{Districts: []string{"5"}}),
	}
	permits := []model.ClassifiedRecord{
		classifiedPermit("p1", "Fishtown", "1"),
		classifiedPermit("p2", "Point Breeze", "5"),
	}

	sender := &recordingSender{}
	d := NewDispatcher(sender, false)
	sent, err := d.Dispatch(context.Background(), subs, permits, nil, model.FrequencyDaily, dispatchNow)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	require.Len(t, sender.emails, 3)

	citywide := sender.emails[0]
	assert.Equal(t, "Philadelphia Development Daily - Aug 25, 2025", citywide.Subject)
	assert.Equal(t, []string{"citywide@example.com"}, citywide.Recipients)
	assert.Contains(t, citywide.Body, "## Citywide")
	assert.Contains(t, citywide.Body, "p1 ST")
	assert.Contains(t, citywide.Body, "p2 ST")

	fishtown := sender.emails[1]
	assert.Equal(t, "Fishtown Development Daily - Aug 25, 2025", fishtown.Subject)
	assert.Contains(t, fishtown.Body, "p1 ST")
	assert.NotContains(t, fishtown.Body, "p2 ST")

	district := sender.emails[2]
	assert.Equal(t, "District 5 Development Daily - Aug 25, 2025", district.Subject)
	assert.Contains(t, district.Body, "p2 ST")
	assert.NotContains(t, district.Body, "p1 ST")
}

func TestDispatch_SkipsQuietAreas(t *testing.T) {
	subs := []model.Subscriber{
		subscriber("overbrook@example.com", model.Preference{Neighborhoods: []string{"Overbrook"}}),
	}
	permits := []model.ClassifiedRecord{
		classifiedPermit("p1", "Fishtown", "1"),
	}

	sender := &recordingSender{}
	d := NewDispatcher(sender, false)
	sent, err := d.Dispatch(context.Background(), subs, permits, nil, model.FrequencyDaily, dispatchNow)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, sender.emails)
}

func TestDispatch_FiltersInactiveAndWrongFrequency(t *testing.T) {
	inactive := subscriber("gone@example.com", model.Preference{})
	inactive.Active = false
	weekly := subscriber("weekly@example.com", model.Preference{Frequency: model.FrequencyWeekly})

	sender := &recordingSender{}
	d := NewDispatcher(sender, false)
	sent, err := d.Dispatch(context.Background(), []model.Subscriber{inactive, weekly},
		[]model.ClassifiedRecord{classifiedPermit("p1", "Fishtown", "1")}, nil,
		model.FrequencyDaily, dispatchNow)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, sender.emails)
}

func TestDispatch_DryRunCountsWithoutSending(t *testing.T) {
	subs := []model.Subscriber{
		subscriber("citywide@example.com", model.Preference{}),
	}

	sender := &recordingSender{}
	d := NewDispatcher(sender, true)
	sent, err := d.Dispatch(context.Background(), subs, nil, nil, model.FrequencyDaily, dispatchNow)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Empty(t, sender.emails)
}

func TestDispatch_DeterministicAreaOrder(t *testing.T) {
	subs := []model.Subscriber{
		subscriber("b@example.com", model.Preference{Neighborhoods: []string{"Point Breeze"}}),
		subscriber("a@example.com", model.Preference{Neighborhoods: []string{"Fishtown"}}),
	}
	permits := []model.ClassifiedRecord{
		classifiedPermit("p1", "Fishtown", "1"),
		classifiedPermit("p2", "Point Breeze", "2"),
	}

	for range 3 {
		sender := &recordingSender{}
		_, err := NewDispatcher(sender, false).Dispatch(context.Background(), subs, permits, nil, model.FrequencyDaily, dispatchNow)
		require.NoError(t, err)
		require.Len(t, sender.emails, 2)
		assert.Contains(t, sender.emails[0].Subject, "Fishtown")
		assert.Contains(t, sender.emails[1].Subject, "Point Breeze")
	}
}

func TestGroupSubscribers_MultiAreaSubscriber(t *testing.T) {
	subs := []model.Subscriber{
		subscriber("both@example.com", model.Preference{
			Neighborhoods: []string{"Fishtown"},
			Districts:     []string{"1"},
		}),
	}

	groups := groupSubscribers(subs, model.FrequencyDaily)
	assert.Empty(t, groups.citywide)
	assert.Equal(t, []string{"both@example.com"}, groups.neighborhoods["Fishtown"])
	assert.Equal(t, []string{"both@example.com"}, groups.districts["1"])
}
