package ops

import (
	stderrors "errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/onelife/onelife/internal/errors"
	"github.com/onelife/onelife/internal/settings"
)

// SettingsOutput contains the current settings. The API key is masked unless
// explicitly revealed.
type SettingsOutput struct {
	Settings settings.Settings `json:"settings"`
	Warning  string            `json:"warning,omitempty"`
}

// GetSettings returns the stored settings merged over defaults.
func GetSettings(prefs *settings.Prefs, reveal bool) (*SettingsOutput, error) {
	s, err := settings.Load(prefs)
	out := &SettingsOutput{Settings: s}
	if err != nil {
		out.Warning = "stored settings unreadable, showing defaults: " + err.Error()
	}
	if !reveal {
		out.Settings = out.Settings.Redacted()
	}
	return out, nil
}

// UpdateSettings applies patch to the stored settings and saves the result.
func UpdateSettings(prefs *settings.Prefs, patch settings.Patch) (*SettingsOutput, error) {
	if patch.Empty() {
		return nil, errors.NewInvalidRequest("no settings to change")
	}
	current, _ := settings.Load(prefs)
	next := current.Apply(patch)
	if err := settings.Save(prefs, next); err != nil {
		var verrs validation.Errors
		if stderrors.As(err, &verrs) {
			return nil, errors.NewInvalidRequest("invalid settings: " + verrs.Error())
		}
		return nil, errors.NewStorage("save settings", err)
	}
	return &SettingsOutput{Settings: next.Redacted()}, nil
}

// ResetSettings restores the defaults.
func ResetSettings(prefs *settings.Prefs) (*SettingsOutput, error) {
	if err := settings.Reset(prefs); err != nil {
		return nil, errors.NewStorage("reset settings", err)
	}
	return &SettingsOutput{Settings: settings.Defaults()}, nil
}
