package settings

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Key is the preference key the settings blob is stored under.
const Key = "settings"

// Settings configures the completion endpoint and client-side toggles.
// JSON names match the stored blob.
type Settings struct {
	EndpointURL   string  `json:"gradientParallaxUrl"`
	Model         string  `json:"model"`
	APIKey        string  `json:"apiKey"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"maxTokens"`
	Encryption    bool    `json:"encryption"`
	Notifications bool    `json:"notifications"`
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{
		EndpointURL:   "http://localhost:3001",
		Model:         "Qwen/Qwen3-0.6B",
		Temperature:   0.7,
		MaxTokens:     2048,
		Encryption:    true,
		Notifications: false,
	}
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.EndpointURL, validation.Required, validation.By(httpURL)),
		validation.Field(&s.Model, validation.Required),
		validation.Field(&s.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&s.MaxTokens, validation.Required, validation.Min(1), validation.Max(32768)),
	)
}

// Redacted returns a copy safe to display, with the API key masked.
func (s Settings) Redacted() Settings {
	if s.APIKey != "" {
		s.APIKey = "********"
	}
	return s
}

func httpURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

// Load returns the stored settings with defaults for any missing field.
// When the stored blob is unreadable, Load returns the defaults together with
// the error so callers can keep going.
func Load(p *Prefs) (Settings, error) {
	s := Defaults()
	if _, err := p.Get(Key, &s); err != nil {
		return Defaults(), err
	}
	s.EndpointURL = strings.TrimRight(strings.TrimSpace(s.EndpointURL), "/")
	return s, nil
}

// Save validates s and stores it.
func Save(p *Prefs, s Settings) error {
	s.EndpointURL = strings.TrimRight(strings.TrimSpace(s.EndpointURL), "/")
	if err := s.Validate(); err != nil {
		return err
	}
	return p.Set(Key, s)
}

// Reset removes stored settings so Defaults apply again.
func Reset(p *Prefs) error {
	return p.Remove(Key)
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	EndpointURL   *string  `json:"gradientParallaxUrl,omitempty"`
	Model         *string  `json:"model,omitempty"`
	APIKey        *string  `json:"apiKey,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"maxTokens,omitempty"`
	Encryption    *bool    `json:"encryption,omitempty"`
	Notifications *bool    `json:"notifications,omitempty"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply returns s with p's non-nil fields applied.
func (s Settings) Apply(p Patch) Settings {
	if p.EndpointURL != nil {
		s.EndpointURL = *p.EndpointURL
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.APIKey != nil {
		s.APIKey = *p.APIKey
	}
	if p.Temperature != nil {
		s.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		s.MaxTokens = *p.MaxTokens
	}
	if p.Encryption != nil {
		s.Encryption = *p.Encryption
	}
	if p.Notifications != nil {
		s.Notifications = *p.Notifications
	}
	return s
}
