package model

// Frequency is how often a subscriber receives a digest.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Preference is a subscriber's declared area interest. Both sets empty
// means citywide: every record is relevant.
type Preference struct {
	Neighborhoods []string  `json:"neighborhoods,omitempty"`
	Districts     []string  `json:"districts,omitempty"`
	Frequency     Frequency `json:"frequency,omitempty"`
}

// Subscriber ties an email address to a delivery preference.
type Subscriber struct {
	Email      string     `json:"email"`
	Preference Preference `json:"preference"`
	Active     bool       `json:"active"`
}
