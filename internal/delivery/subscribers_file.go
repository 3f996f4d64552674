package delivery

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/phlwatch/digest-cli/internal/model"
)

type subscriberEntry struct {
	Email         string   `yaml:"email"`
	Neighborhoods []string `yaml:"neighborhoods"`
	Districts     []string `yaml:"districts"`
	Frequency     string   `yaml:"frequency"`
	Active        *bool    `yaml:"active,omitempty"` // nil means active
}

// LoadSubscribersFile reads a subscriber list from a YAML file, the
// offline alternative to the Buttondown list for local runs and tests.
func LoadSubscribersFile(path string) ([]model.Subscriber, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "delivery: read subscribers %s", path)
	}

	var wrapper struct {
		Subscribers []subscriberEntry `yaml:"subscribers"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "delivery: parse subscribers")
	}

	out := make([]model.Subscriber, 0, len(wrapper.Subscribers))
	for _, e := range wrapper.Subscribers {
		if e.Email == "" {
			continue
		}
		freq := model.FrequencyWeekly
		if e.Frequency == string(model.FrequencyDaily) {
			freq = model.FrequencyDaily
		}
		active := e.Active == nil || *e.Active
		out = append(out, model.Subscriber{
			Email: e.Email,
			Preference: model.Preference{
				Neighborhoods: e.Neighborhoods,
				Districts:     e.Districts,
				Frequency:     freq,
			},
			Active: active,
		})
	}
	return out, nil
}
