// Package commandfs discovers command descriptors laid out as
// <root>/<category>/<file> and loads them into typed descriptors.
package commandfs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dealerbot/pkg/dealer"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRoot is the descriptor tree scanned when none is configured.
	DefaultRoot = "commands"
	// DefaultExtension selects descriptor files when none is configured.
	DefaultExtension = ".yaml"
)

// Descriptor is one validated command descriptor.
type Descriptor struct {
	// Path is the file the descriptor was loaded from.
	Path string
	// Category is the directory grouping the file.
	Category string
	// Data is the command definition sent to the platform.
	Data dealer.CommandSpec
	// Execute names the module whose handler runs the command.
	Execute string
}

type rawDescriptor struct {
	Data    *rawCommandData `yaml:"data" toml:"data" json:"data"`
	Execute string          `yaml:"execute" toml:"execute" json:"execute"`
	Command *rawDescriptor  `yaml:"command" toml:"command" json:"command"`
}

type rawCommandData struct {
	Name        string          `yaml:"name" toml:"name" json:"name"`
	Description string          `yaml:"description" toml:"description" json:"description"`
	Options     []rawOptionData `yaml:"options" toml:"options" json:"options"`
}

type rawOptionData struct {
	Name        string `yaml:"name" toml:"name" json:"name"`
	Description string `yaml:"description" toml:"description" json:"description"`
	Type        string `yaml:"type" toml:"type" json:"type"`
	Required    bool   `yaml:"required" toml:"required" json:"required"`
}

// BindingFunc checks that a descriptor's execute target can serve its command.
type BindingFunc func(execute string, command dealer.CommandSpec) error

// Loader discovers and loads descriptors, warning about and skipping
// anything malformed.
type Loader struct {
	root      string
	extension string
	logger    *slog.Logger
	bind      BindingFunc
}

// Option mutates Loader configuration.
type Option func(*Loader)

// WithExtension selects which files are descriptors.
func WithExtension(extension string) Option {
	return func(l *Loader) {
		extension = strings.TrimSpace(extension)
		if extension == "" {
			return
		}
		if !strings.HasPrefix(extension, ".") {
			extension = "." + extension
		}
		l.extension = strings.ToLower(extension)
	}
}

// WithLogger configures where skip warnings go.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBinding validates execute targets during loading.
func WithBinding(bind BindingFunc) Option {
	return func(l *Loader) {
		l.bind = bind
	}
}

// NewLoader creates a loader rooted at root, or DefaultRoot when empty.
func NewLoader(root string, options ...Option) *Loader {
	root = strings.TrimSpace(root)
	if root == "" {
		root = DefaultRoot
	}

	loader := &Loader{
		root:      root,
		extension: DefaultExtension,
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(loader)
	}

	return loader
}

// Discover lists descriptor files in category order, then file order. Both
// levels follow directory-listing order, which os.ReadDir sorts by name.
func (l *Loader) Discover() ([]string, error) {
	categories, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read commands dir %s: %w", l.root, err)
	}

	var paths []string
	for _, category := range categories {
		if !category.IsDir() {
			continue
		}

		categoryDir := filepath.Join(l.root, category.Name())
		files, err := os.ReadDir(categoryDir)
		if err != nil {
			return nil, fmt.Errorf("read command category %s: %w", categoryDir, err)
		}
		for _, file := range files {
			if file.IsDir() || strings.ToLower(filepath.Ext(file.Name())) != l.extension {
				continue
			}
			paths = append(paths, filepath.Join(categoryDir, file.Name()))
		}
	}

	return paths, nil
}

// LoadAll discovers and loads every descriptor, keeping discovery order.
func (l *Loader) LoadAll() ([]Descriptor, error) {
	paths, err := l.Discover()
	if err != nil {
		return nil, err
	}

	descriptors := make([]Descriptor, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		descriptor, ok := l.Load(path)
		if !ok {
			continue
		}
		if previous, exists := seen[descriptor.Data.Name]; exists {
			l.logger.Warn(
				fmt.Sprintf("The command at %s duplicates /%s from %s.", path, descriptor.Data.Name, previous),
				"path", path,
			)
			continue
		}
		seen[descriptor.Data.Name] = path
		descriptors = append(descriptors, descriptor)
	}

	return descriptors, nil
}

// Load reads one descriptor file. It reports false after logging exactly one
// warning naming path when the file cannot serve as a descriptor.
func (l *Loader) Load(path string) (Descriptor, bool) {
	raw, err := readDescriptor(path)
	if err != nil {
		l.logger.Warn(fmt.Sprintf("The command at %s could not be read: %v", path, err), "path", path)
		return Descriptor{}, false
	}
	if raw.Command != nil && raw.Data == nil && raw.Execute == "" {
		raw = *raw.Command
	}
	if raw.Data == nil || strings.TrimSpace(raw.Execute) == "" {
		l.logger.Warn(
			fmt.Sprintf("The command at %s is missing a required \"data\" or \"execute\" property.", path),
			"path", path,
		)
		return Descriptor{}, false
	}

	descriptor := Descriptor{
		Path:     path,
		Category: filepath.Base(filepath.Dir(path)),
		Data:     raw.Data.toSpec(),
		Execute:  strings.TrimSpace(raw.Execute),
	}
	if err := descriptor.Data.Validate(); err != nil {
		l.logger.Warn(fmt.Sprintf("The command at %s has invalid \"data\": %v", path, err), "path", path)
		return Descriptor{}, false
	}
	if l.bind != nil {
		if err := l.bind(descriptor.Execute, descriptor.Data); err != nil {
			l.logger.Warn(fmt.Sprintf("The command at %s has invalid \"execute\": %v", path, err), "path", path)
			return Descriptor{}, false
		}
	}

	return descriptor, true
}

func readDescriptor(path string) (rawDescriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return rawDescriptor{}, fmt.Errorf("read: %w", err)
	}

	var raw rawDescriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &raw)
	case ".toml":
		err = toml.Unmarshal(content, &raw)
	case ".json":
		err = json.Unmarshal(content, &raw)
	default:
		return rawDescriptor{}, fmt.Errorf("unsupported descriptor format %q", filepath.Ext(path))
	}
	if err != nil {
		return rawDescriptor{}, fmt.Errorf("decode: %w", err)
	}

	return raw, nil
}

func (d rawCommandData) toSpec() dealer.CommandSpec {
	spec := dealer.CommandSpec{
		Name:        dealer.NormalizeCommandName(d.Name),
		Description: strings.TrimSpace(d.Description),
	}
	for _, option := range d.Options {
		spec.Options = append(spec.Options, dealer.CommandOptionSpec{
			Name:        dealer.NormalizeCommandName(option.Name),
			Description: strings.TrimSpace(option.Description),
			Type:        dealer.CommandOptionType(strings.ToLower(strings.TrimSpace(option.Type))),
			Required:    option.Required,
		})
	}

	return spec
}
