package delivery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/phlwatch/digest-cli/internal/digest"
	"github.com/phlwatch/digest-cli/internal/match"
	"github.com/phlwatch/digest-cli/internal/model"
)

// Sender sends one email. Satisfied by ButtondownClient; tests substitute
// a recorder.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Dispatcher groups subscribers by geographic preference and sends each
// group a digest scoped to its area. Areas with no activity in the period
// are skipped rather than sent an empty email.
type Dispatcher struct {
	sender Sender
	dryRun bool
}

// NewDispatcher creates a Dispatcher. With dryRun set, sends are logged
// and counted but never hit the sender.
func NewDispatcher(sender Sender, dryRun bool) *Dispatcher {
	return &Dispatcher{sender: sender, dryRun: dryRun}
}

type subscriberGroups struct {
	citywide      []string
	neighborhoods map[string][]string
	districts     map[string][]string
}

// groupSubscribers buckets active subscribers of the given frequency by
// preference. A subscriber naming both neighborhoods and districts lands
// in every named bucket and is deduplicated per bucket, not across them;
// overlapping areas mean overlapping digests, which is what they asked
// for.
func groupSubscribers(subscribers []model.Subscriber, freq model.Frequency) subscriberGroups {
	groups := subscriberGroups{
		neighborhoods: make(map[string][]string),
		districts:     make(map[string][]string),
	}
	for _, s := range subscribers {
		if !s.Active || s.Preference.Frequency != freq {
			continue
		}
		if match.Citywide(s.Preference) {
			groups.citywide = append(groups.citywide, s.Email)
			continue
		}
		for _, n := range s.Preference.Neighborhoods {
			groups.neighborhoods[n] = append(groups.neighborhoods[n], s.Email)
		}
		for _, d := range s.Preference.Districts {
			groups.districts[d] = append(groups.districts[d], s.Email)
		}
	}
	return groups
}

// Dispatch sends one digest per subscriber group and returns the number
// of recipients reached.
func (d *Dispatcher) Dispatch(ctx context.Context, subscribers []model.Subscriber, permits, variances []model.ClassifiedRecord, freq model.Frequency, now time.Time) (int, error) {
	groups := groupSubscribers(subscribers, freq)
	dateLabel := now.Format("Jan 02, 2006")
	sent := 0

	if len(groups.citywide) > 0 {
		body := d.body(permits, variances, "Citywide", now)
		subject := fmt.Sprintf("Philadelphia Development Daily - %s", dateLabel)
		if err := d.send(ctx, Email{Subject: subject, Body: body, Recipients: groups.citywide}); err != nil {
			return sent, err
		}
		sent += len(groups.citywide)
	}

	for _, neighborhood := range sortedKeys(groups.neighborhoods) {
		emails := groups.neighborhoods[neighborhood]
		pref := model.Preference{Neighborhoods: []string{neighborhood}}
		fp := match.Match(pref, permits)
		fv := match.Match(pref, variances)
		if len(fp) == 0 && len(fv) == 0 {
			zap.L().Info("delivery: no activity, skipping", zap.String("area", neighborhood))
			continue
		}

		body := d.body(fp, fv, neighborhood+" Neighborhood", now)
		subject := fmt.Sprintf("%s Development Daily - %s", neighborhood, dateLabel)
		if err := d.send(ctx, Email{Subject: subject, Body: body, Recipients: emails}); err != nil {
			return sent, err
		}
		sent += len(emails)
	}

	for _, district := range sortedKeys(groups.districts) {
		emails := groups.districts[district]
		pref := model.Preference{Districts: []string{district}}
		fp := match.Match(pref, permits)
		fv := match.Match(pref, variances)
		if len(fp) == 0 && len(fv) == 0 {
			zap.L().Info("delivery: no activity, skipping", zap.String("area", "district "+district))
			continue
		}

		body := d.body(fp, fv, "Council District "+district, now)
		subject := fmt.Sprintf("District %s Development Daily - %s", district, dateLabel)
		if err := d.send(ctx, Email{Subject: subject, Body: body, Recipients: emails}); err != nil {
			return sent, err
		}
		sent += len(emails)
	}

	zap.L().Info("delivery: dispatch complete",
		zap.Int("recipients", sent),
		zap.Bool("dry_run", d.dryRun),
	)
	return sent, nil
}

func (d *Dispatcher) body(permits, variances []model.ClassifiedRecord, area string, now time.Time) string {
	return digest.Markdown(digest.Input{
		Permits:   permits,
		Variances: variances,
		Start:     now.AddDate(0, 0, -1),
		End:       now,
		AreaName:  area,
	})
}

func (d *Dispatcher) send(ctx context.Context, email Email) error {
	if d.dryRun {
		zap.L().Info("delivery: dry run, not sending",
			zap.String("subject", email.Subject),
			zap.Int("recipients", len(email.Recipients)),
		)
		return nil
	}
	if err := d.sender.Send(ctx, email); err != nil {
		return eris.Wrapf(err, "delivery: dispatch %q", email.Subject)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
