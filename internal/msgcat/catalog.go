// Package msgcat renders user-facing messages from YAML templates.
package msgcat

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

const defaultFile = "messages.en.yaml"

//go:embed messages.en.yaml
var defaults embed.FS

// Catalog holds parsed message templates keyed by dotted path, e.g.
// "errors.MATCH_NOT_FOUND". Templates are parsed once at load time and
// rendered with missingkey=error.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// New loads the embedded English messages, then the *.yaml / *.yml files in
// overrideDir (if any) in name order. An override file may replace an
// embedded message but two override files may not define the same key.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]*template.Template)}

	raw, err := defaults.ReadFile(defaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	entries, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", defaultFile, err)
	}
	if err := c.install(entries); err != nil {
		return nil, fmt.Errorf("%s: %w", defaultFile, err)
	}

	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if err := c.installDir(dir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) installDir(dir string) error {
	names, err := messageFiles(dir)
	if err != nil {
		return err
	}
	owner := make(map[string]string)
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		entries, err := flatten(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for key := range entries {
			if prev, dup := owner[key]; dup {
				return fmt.Errorf("message %q defined in both %s and %s", key, prev, name)
			}
			owner[key] = name
		}
		if err := c.install(entries); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func messageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read message dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// install parses every entry before replacing any, so a bad file leaves the
// catalog untouched.
func (c *Catalog) install(entries map[string]string) error {
	parsed := make(map[string]*template.Template, len(entries))
	for key, text := range entries {
		if strings.TrimSpace(text) == "" {
			continue
		}
		t, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("message %q: %w", key, err)
		}
		parsed[key] = t
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, t := range parsed {
		c.templates[key] = t
	}
	return nil
}

// flatten turns nested YAML maps into dotted keys. Leaves must be strings.
func flatten(raw []byte) (map[string]string, error) {
	var root map[string]any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var walk func(prefix string, node any) error
	walk = func(prefix string, node any) error {
		switch v := node.(type) {
		case map[string]any:
			for k, child := range v {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				if err := walk(key, child); err != nil {
					return err
				}
			}
		case string:
			out[prefix] = v
		case nil:
		default:
			return fmt.Errorf("message %q: want string, got %T", prefix, v)
		}
		return nil
	}
	if err := walk("", root); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Catalog) lookup(key string) (*template.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[strings.TrimSpace(key)]
	return t, ok
}

// Render executes the message at key with data. Unknown keys and fields
// missing from data are errors; use Text for a fallback.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.lookup(key)
	if !ok {
		return "", fmt.Errorf("message not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text renders key, or returns fallback when it cannot.
func (c *Catalog) Text(key string, data any, fallback string) string {
	if c == nil {
		return fallback
	}
	out, err := c.Render(key, data)
	if err != nil {
		return fallback
	}
	return out
}

func (c *Catalog) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.lookup(key)
	return ok
}
