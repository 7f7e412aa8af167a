package settings

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPrefs_SetGetRemove(t *testing.T) {
	p := OpenPrefs(t.TempDir())

	var v map[string]int
	found, err := p.Get("counts", &v)
	if err != nil || found {
		t.Fatalf("Get() on empty store = %v, %v", found, err)
	}

	if err := p.Set("counts", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := p.Set("other", "x"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	found, err = p.Get("counts", &v)
	if err != nil || !found || v["a"] != 1 {
		t.Fatalf("Get() = %v, %v, %v", v, found, err)
	}

	if err := p.Remove("counts"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := p.Remove("missing"); err != nil {
		t.Fatalf("Remove(missing) error = %v", err)
	}
	found, _ = p.Get("counts", &v)
	if found {
		t.Error("counts still present after Remove")
	}
	var other string
	if found, _ := p.Get("other", &other); !found || other != "x" {
		t.Errorf("other = %q, %v", other, found)
	}

	info, err := os.Stat(p.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("prefs mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	s, err := Load(OpenPrefs(t.TempDir()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s != Defaults() {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestLoad_PartialBlobKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	blob := `{"settings": {"model": "llama3", "gradientParallaxUrl": "http://gpu:8000/"}}`
	if err := os.WriteFile(filepath.Join(dir, PrefsFileName), []byte(blob), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(OpenPrefs(dir))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Model != "llama3" || s.EndpointURL != "http://gpu:8000" {
		t.Errorf("Load() = %+v", s)
	}
	if s.MaxTokens != 2048 || s.Temperature != 0.7 || !s.Encryption {
		t.Errorf("defaults not kept: %+v", s)
	}
}

func TestLoad_CorruptReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, PrefsFileName), []byte(`{"settings": 12`), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(OpenPrefs(dir))
	if err == nil {
		t.Fatal("Load() expected error for corrupt file")
	}
	if s != Defaults() {
		t.Errorf("Load() = %+v, want defaults alongside error", s)
	}
}

func TestSaveAndReset(t *testing.T) {
	p := OpenPrefs(t.TempDir())
	s := Defaults()
	s.APIKey = "secret"
	s.Temperature = 1.2

	if err := Save(p, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(p)
	if err != nil || got != s {
		t.Fatalf("Load() = %+v, %v; want %+v", got, err, s)
	}
	if got.Redacted().APIKey == "secret" {
		t.Error("Redacted() leaked the API key")
	}

	if err := Reset(p); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got, _ := Load(p); got != Defaults() {
		t.Errorf("Load() after Reset = %+v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(*Settings) {}, false},
		{"https", func(s *Settings) { s.EndpointURL = "https://api.example.com" }, false},
		{"zero temperature", func(s *Settings) { s.Temperature = 0 }, false},
		{"empty url", func(s *Settings) { s.EndpointURL = "" }, true},
		{"ftp url", func(s *Settings) { s.EndpointURL = "ftp://host" }, true},
		{"no host", func(s *Settings) { s.EndpointURL = "http://" }, true},
		{"hot", func(s *Settings) { s.Temperature = 2.5 }, true},
		{"negative temperature", func(s *Settings) { s.Temperature = -0.1 }, true},
		{"zero tokens", func(s *Settings) { s.MaxTokens = 0 }, true},
		{"too many tokens", func(s *Settings) { s.MaxTokens = 40000 }, true},
		{"no model", func(s *Settings) { s.Model = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	p := OpenPrefs(t.TempDir())
	s := Defaults()
	s.MaxTokens = -5
	if err := Save(p, s); err == nil {
		t.Fatal("Save() expected validation error")
	}
	if _, err := os.Stat(p.Path()); !os.IsNotExist(err) {
		t.Error("invalid settings should not create the prefs file")
	}
}

func TestApply(t *testing.T) {
	model := "other"
	tokens := 10
	off := false
	got := Defaults().Apply(Patch{Model: &model, MaxTokens: &tokens, Encryption: &off})
	if got.Model != "other" || got.MaxTokens != 10 || got.Encryption {
		t.Errorf("Apply() = %+v", got)
	}
	if got.EndpointURL != Defaults().EndpointURL {
		t.Error("Apply() changed an unset field")
	}
	if !(Patch{}).Empty() || (Patch{Model: &model}).Empty() {
		t.Error("Empty() wrong")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	p := OpenPrefs(t.TempDir())
	if err := Save(p, Defaults()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Settings, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, discardLogger(), func(s Settings) { changes <- s })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	s := Defaults()
	s.Model = "reloaded"
	if err := Save(p, s); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changes:
		if got.Model != "reloaded" {
			t.Errorf("reloaded Model = %q", got.Model)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not stop after cancel")
	}
}
