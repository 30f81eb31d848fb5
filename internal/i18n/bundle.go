package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"golang.org/x/text/number"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Bundle holds the site copy for every supported locale.
//
// Messages live in locales/<locale>.yaml as nested maps; keys are addressed
// with dots ("nav.books"). English is the base locale: any key missing from
// another locale falls back to its English text.
type Bundle struct {
	messages map[Locale]map[string]string
	missing  map[Locale][]string
	printers map[Locale]*message.Printer
}

// Load reads the embedded message files.
func Load() (*Bundle, error) {
	return LoadFS(localeFS)
}

// LoadFS reads locales/<locale>.yaml for every supported locale from fsys.
func LoadFS(fsys fs.FS) (*Bundle, error) {
	b := &Bundle{
		messages: make(map[Locale]map[string]string, len(Supported)),
		missing:  make(map[Locale][]string),
		printers: make(map[Locale]*message.Printer, len(Supported)),
	}

	for _, l := range Supported {
		path := "locales/" + string(l) + ".yaml"
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		flat := make(map[string]string)
		if err := flatten("", tree, flat); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
		b.messages[l] = flat
	}

	base := b.messages[Default]
	if len(base) == 0 {
		return nil, fmt.Errorf("base locale %s has no messages", Default)
	}
	for _, l := range Supported {
		if l == Default {
			continue
		}
		for key, value := range base {
			if _, ok := b.messages[l][key]; !ok {
				b.messages[l][key] = value
				b.missing[l] = append(b.missing[l], key)
			}
		}
		sort.Strings(b.missing[l])
	}

	builder := catalog.NewBuilder(catalog.Fallback(Default.Tag()))
	for _, l := range Supported {
		for key, value := range b.messages[l] {
			if err := builder.SetString(l.Tag(), key, value); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", l, key, err)
			}
		}
	}
	for _, l := range Supported {
		b.printers[l] = message.NewPrinter(l.Tag(), message.Catalog(builder))
	}
	return b, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case string:
			out[key] = val
		case nil:
			return fmt.Errorf("key %q has no value", key)
		case []any:
			return fmt.Errorf("key %q: lists are not supported", key)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return nil
}

// T returns the message for key in locale l, formatting args into it.
// Unknown keys render as the key itself so a missing string is visible on
// the page instead of blank.
func (b *Bundle) T(l Locale, key string, args ...any) string {
	p := b.printer(l)
	if _, ok := b.messages[b.locale(l)][key]; !ok {
		return key
	}
	return p.Sprintf(key, args...)
}

// Has reports whether key is defined for the base locale.
func (b *Bundle) Has(key string) bool {
	_, ok := b.messages[Default][key]
	return ok
}

// Missing lists the keys of l that fell back to English.
func (b *Bundle) Missing(l Locale) []string {
	return append([]string(nil), b.missing[l]...)
}

// Keys returns the sorted base-locale keys.
func (b *Bundle) Keys() []string {
	keys := make([]string, 0, len(b.messages[Default]))
	for k := range b.messages[Default] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Number formats n with the locale's digit grouping, e.g. "1,234".
func (b *Bundle) Number(l Locale, n int) string {
	return b.printer(l).Sprint(number.Decimal(n))
}

func (b *Bundle) printer(l Locale) *message.Printer {
	return b.printers[b.locale(l)]
}

func (b *Bundle) locale(l Locale) Locale {
	if _, ok := b.printers[l]; ok {
		return l
	}
	return Default
}

// MonthYear renders t as "January 2024" or "2024年1月".
func MonthYear(l Locale, t time.Time) string {
	if l == Chinese {
		return fmt.Sprintf("%d年%d月", t.Year(), int(t.Month()))
	}
	return t.Format("January 2006")
}
