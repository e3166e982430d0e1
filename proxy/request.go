package proxy

import (
	"github.com/akuchlous/tokengard-mvp-sub000/openai"
)

// Defaults applied during request normalization.
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = float32(0.7)
)

// RequestData is the normalized body of a proxy request. Either Text or an
// OpenAI-style Messages list may be present; the gateway fills APIKey from
// headers when the body omits it.
type RequestData struct {
	APIKey      string           `json:"api_key,omitempty"`
	Text        string           `json:"text,omitempty"`
	Messages    []openai.Message `json:"messages,omitempty"`
	Model       string           `json:"model,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	PolicyOnly  bool             `json:"policy_only,omitempty"`
}

// Normalize resolves the prompt text, model and temperature. When Messages
// is present the text is the newline-joined concatenation of all user string
// contents, in order.
func (d *RequestData) Normalize() (text string, model string, temperature float32) {
	text = d.Text
	if len(d.Messages) > 0 {
		text = openai.UserText(d.Messages)
	}

	model = d.Model
	if model == "" {
		model = DefaultModel
	}

	temperature = DefaultTemperature
	if d.Temperature != nil {
		temperature = *d.Temperature
	}
	return text, model, temperature
}
