// Package locale resolves user-facing strings from embedded YAML tables.
package locale

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yml
var tablesFS embed.FS

var (
	loadOnce sync.Once
	loadErr  error
	tables   map[string]map[string]string
)

func loadTables() {
	tables = make(map[string]map[string]string)
	entries, err := fs.ReadDir(tablesFS, "locales")
	if err != nil {
		loadErr = fmt.Errorf("locale: read tables: %w", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".yml") {
			continue
		}
		data, err := tablesFS.ReadFile(path.Join("locales", name))
		if err != nil {
			loadErr = fmt.Errorf("locale: read %s: %w", name, err)
			return
		}
		table := make(map[string]string)
		if err := yaml.Unmarshal(data, &table); err != nil {
			loadErr = fmt.Errorf("locale: parse %s: %w", name, err)
			return
		}
		tables[strings.TrimSuffix(name, ".yml")] = table
	}
}

// Localizer resolves string keys for one language with a fallback language.
type Localizer struct {
	table    map[string]string
	fallback map[string]string
}

// New builds a Localizer for the given language. Unknown languages resolve
// entirely through the fallback table.
func New(lang, fallback string) (*Localizer, error) {
	loadOnce.Do(loadTables)
	if loadErr != nil {
		return nil, loadErr
	}

	fb, ok := tables[normalizeLang(fallback)]
	if !ok {
		return nil, fmt.Errorf("locale: unknown fallback language %q", fallback)
	}
	primary := tables[normalizeLang(lang)]
	if primary == nil {
		primary = fb
	}
	return &Localizer{table: primary, fallback: fb}, nil
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	// Telegram language codes may carry a region suffix like "en-US".
	if base, _, found := strings.Cut(lang, "-"); found {
		return base
	}
	return lang
}

// Get resolves a key and applies {placeholder} substitutions given as
// alternating name/value pairs. Unknown keys resolve to the key itself so a
// missing string never breaks a conversation.
func (l *Localizer) Get(key string, subs ...string) string {
	text, ok := l.table[key]
	if !ok {
		text, ok = l.fallback[key]
	}
	if !ok {
		return key
	}
	if len(subs) == 0 {
		return text
	}
	pairs := make([]string, 0, len(subs))
	for i := 0; i+1 < len(subs); i += 2 {
		pairs = append(pairs, "{"+subs[i]+"}", subs[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
