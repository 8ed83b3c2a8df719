// Package templates renders short outbound message texts.
package templates

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Renderer renders small text templates with strict missing-key semantics.
// Parsed templates are cached by name; the zero value is ready to use.
type Renderer struct {
	mu     sync.RWMutex
	parsed map[string]*template.Template
}

// Render executes tmpl with data. Templates sharing a name must share text.
func (r *Renderer) Render(name, tmpl string, data any) (string, error) {
	t, err := r.lookup(name, tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *Renderer) lookup(name, tmpl string) (*template.Template, error) {
	if tmpl == "" {
		return nil, fmt.Errorf("templates: template text required")
	}
	r.mu.RLock()
	t, ok := r.parsed[name]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("templates: parse %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.parsed == nil {
		r.parsed = make(map[string]*template.Template)
	}
	r.parsed[name] = t
	return t, nil
}
