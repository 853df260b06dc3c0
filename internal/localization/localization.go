// Package localization provides the text attached to system notices
// (chat ended, nobody available, ...). Bundles are JSON files named after the
// language code (e.g. "en.json") and are embedded into the binary.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
)

// DefaultLang is used when a connection did not declare a language or the
// declared one has no translation for a key.
const DefaultLang = "en"

//go:embed *.json
var bundles embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

var embedded = sync.OnceValue(func() *Localizer {
	l, err := NewLocalizer(bundles)
	if err != nil {
		// The embedded bundles are part of the build; failing here is a build defect.
		panic(err)
	}
	return l
})

// Default returns the shared Localizer over the embedded bundles.
func Default() *Localizer {
	return embedded()
}

// NewLocalizer loads every *.json file at the root of fsys.
func NewLocalizer(fsys fs.FS) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[strings.TrimSuffix(path.Base(file.Name()), ".json")] = translations
	}

	return l, nil
}

// Lookup returns the translation of key for lang, falling back to DefaultLang.
func (l *Localizer) Lookup(lang, key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if value, ok := l.translations[normalizeLang(lang)][key]; ok {
		return value, true
	}
	value, ok := l.translations[DefaultLang][key]
	return value, ok
}

// GetString is Lookup with the key itself as the last fallback.
func (l *Localizer) GetString(lang, key string) string {
	if value, ok := l.Lookup(lang, key); ok {
		return value
	}
	return key
}

// normalizeLang turns "uk-UA" or "UK" into "uk".
func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
