// Package settings persists the extension's user preferences.
package settings

import (
	"context"
	"encoding/json"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/store"
)

const DefaultLanguage = "de"

// Settings are the popup/content-script preferences.
type Settings struct {
	AutoAnalyze       bool            `json:"autoAnalyze"`
	ShowNotifications bool            `json:"showNotifications"`
	AnalysisDelayMS   int             `json:"analysisDelay"`
	EnabledSites      map[string]bool `json:"enabledSites"`
}

// Defaults are applied on first read and for missing fields.
func Defaults() Settings {
	return Settings{
		AutoAnalyze:       true,
		ShowNotifications: true,
		AnalysisDelayMS:   2000,
		EnabledSites: map[string]bool{
			"pubmed":  true,
			"arxiv":   true,
			"scholar": true,
			"nature":  true,
			"science": true,
			"cell":    true,
			"lancet":  true,
			"jama":    true,
			"nejm":    true,
			"plos":    true,
			"bmj":     true,
		},
	}
}

type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service {
	return &Service{store: s}
}

// Get returns the stored settings, falling back to defaults when absent or
// unreadable.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	raw, ok, err := s.store.GetString(ctx, store.KeySettings)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return Defaults(), nil
	}
	settings := Defaults()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return Defaults(), nil
	}
	if settings.EnabledSites == nil {
		settings.EnabledSites = Defaults().EnabledSites
	}
	return settings, nil
}

// Update persists the given settings as a whole.
func (s *Service) Update(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.store.SetString(ctx, store.KeySettings, string(raw))
}

// Language returns the stored UI language preference.
func (s *Service) Language(ctx context.Context) (string, error) {
	lang, ok, err := s.store.GetString(ctx, store.KeyLanguage)
	if err != nil {
		return "", err
	}
	if !ok || lang == "" {
		return DefaultLanguage, nil
	}
	return lang, nil
}

// SetLanguage persists the UI language preference.
func (s *Service) SetLanguage(ctx context.Context, lang string) error {
	return s.store.SetString(ctx, store.KeyLanguage, lang)
}
