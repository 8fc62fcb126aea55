package templates

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template names.
const (
	Join       = "join"
	ReplyStart = "reply_start"
	Nominate   = "nominate"
)

const tplJoin = "Hey! I'm @{{.username}}.\n\n" +
	"Now that I'm here, anyone can invite friends to this group by mentioning " +
	"me in your conversations."

const tplReplyStart = "Hello! I'm @{{.username}}.\n\n" +
	"I help manage inviting new users to groups. If you'd like to use me in " +
	"your groups, add me as an administrator to get started!"

const tplNominate = "I'm nominating you for invitation to {{.group}}.\n\n" +
	"After pressing the button below, you must also press the Start button."

// Defaults returns the built-in template sources keyed by name.
func Defaults() map[string]string {
	return map[string]string{
		Join:       tplJoin,
		ReplyStart: tplReplyStart,
		Nominate:   tplNominate,
	}
}

// Renderer renders named text templates. Referencing a key missing from the
// payload is an error.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// New parses the built-in templates.
func New() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}
	for name, src := range Defaults() {
		if err := r.Register(name, src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register parses src and stores it under name, replacing any previous one.
func (r *Renderer) Register(name, src string) error {
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", name, err)
	}
	r.mu.Lock()
	r.templates[name] = t
	r.mu.Unlock()
	return nil
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data map[string]string) (string, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not registered", name)
	}

	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

// Names lists registered templates in sorted order.
func (r *Renderer) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile overrides templates from a YAML file mapping template name to
// source. A missing file is not an error.
func (r *Renderer) LoadFile(path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("templates file does not exist, using built-in templates", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read templates file: %w", err)
	}

	var sources map[string]string
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return fmt.Errorf("parse templates file %s: %w", path, err)
	}
	for name, src := range sources {
		if err := r.Register(name, src); err != nil {
			return err
		}
		logger.Info("loaded template override", "name", name, "path", path)
	}
	return nil
}
