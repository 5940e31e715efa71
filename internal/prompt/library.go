package prompt

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"gig-copilot/internal/attachment"
)

//go:embed default_templates.yaml
var defaultTemplates []byte

// ErrUnknownTemplate is returned by Resolve for an unknown key.
var ErrUnknownTemplate = errors.New("unknown template")

// Template is a reusable prompt with optional attachments.
type Template struct {
	Key         string `yaml:"-"`
	Description string `yaml:"description"`
	Prompt      string `yaml:"prompt"`
	// Attachments are knowledge-store entry names.
	Attachments []string `yaml:"attachments"`
	// Files are inline file descriptors, e.g. {uri: ..., mimeType: ...}.
	Files []attachment.Descriptor `yaml:"files"`

	tmpl *template.Template
}

type file struct {
	Templates map[string]*Template `yaml:"templates"`
}

// NameResolver maps knowledge-store names to file refs.
type NameResolver interface {
	Resolve(ctx context.Context, names []string) ([]attachment.FileRef, []string, error)
}

// Resolution is a rendered template.
type Resolution struct {
	Text        string
	Attachments []attachment.FileRef
	// Missing lists attachment names the resolver did not know.
	Missing []string
}

// Library holds the parsed templates.
type Library struct {
	templates map[string]*Template
	names     NameResolver
	baseURL   string
}

// Load reads templates from path, falling back to the built-in set when
// the file does not exist.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default()
		}
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in templates.
func Default() (*Library, error) {
	return Parse(defaultTemplates)
}

// Parse parses a templates document.
func Parse(data []byte) (*Library, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	lib := &Library{templates: make(map[string]*Template, len(f.Templates))}
	for key, t := range f.Templates {
		if t == nil || strings.TrimSpace(t.Prompt) == "" {
			return nil, fmt.Errorf("template %q has no prompt", key)
		}
		tmpl, err := template.New(key).Funcs(sprig.TxtFuncMap()).Parse(t.Prompt)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", key, err)
		}
		t.Key = key
		t.tmpl = tmpl
		lib.templates[key] = t
	}
	return lib, nil
}

// WithKnowledge sets the resolver for attachment names. baseURL is used to
// normalize inline file descriptors that only carry an id.
func (l *Library) WithKnowledge(r NameResolver, baseURL string) *Library {
	l.names = r
	l.baseURL = baseURL
	return l
}

// Keys returns the template keys in sorted order.
func (l *Library) Keys() []string {
	return slices.Sorted(maps.Keys(l.templates))
}

// Get returns the template called key.
func (l *Library) Get(key string) (Template, bool) {
	t, ok := l.templates[key]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// Resolve renders template key with vars and resolves its attachments.
// The variables "message" and "job" are always defined.
func (l *Library) Resolve(ctx context.Context, key string, vars map[string]any) (Resolution, error) {
	t, ok := l.templates[key]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
	}

	data := map[string]any{
		"message": "",
		"job":     map[string]any{},
	}
	maps.Copy(data, vars)

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return Resolution{}, fmt.Errorf("failed to render template %q: %w", key, err)
	}
	res := Resolution{Text: strings.TrimSpace(buf.String())}

	if len(t.Attachments) > 0 && l.names != nil {
		refs, missing, err := l.names.Resolve(ctx, t.Attachments)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to resolve attachments of %q: %w", key, err)
		}
		res.Attachments = append(res.Attachments, refs...)
		res.Missing = missing
	} else if len(t.Attachments) > 0 {
		res.Missing = append(res.Missing, t.Attachments...)
	}
	res.Attachments = append(res.Attachments, attachment.NormalizeAll(t.Files, l.baseURL)...)

	return res, nil
}
