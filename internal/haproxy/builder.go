package haproxy

import (
	"fmt"
	"regexp"
	"strings"
)

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

const indent = "    "

// ConfigBuilder accumulates haproxy.cfg sections.
type ConfigBuilder struct {
	lines    []string
	sections int
}

// NewConfigBuilder creates an empty builder.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{lines: make([]string, 0, 64)}
}

// AddComment adds a top-level comment line.
func (b *ConfigBuilder) AddComment(format string, args ...any) {
	b.lines = append(b.lines, "# "+fmt.Sprintf(format, args...))
}

// AddSection starts a section ("global", "defaults", "listen name", ...).
// Sections are separated by a blank line.
func (b *ConfigBuilder) AddSection(kind, name string) error {
	if name != "" && !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	if len(b.lines) > 0 {
		b.lines = append(b.lines, "")
	}
	header := kind
	if name != "" {
		header += " " + name
	}
	b.lines = append(b.lines, header)
	b.sections++
	return nil
}

// AddDirective adds an indented directive to the current section.
func (b *ConfigBuilder) AddDirective(format string, args ...any) {
	b.lines = append(b.lines, indent+fmt.Sprintf(format, args...))
}

// Sections returns how many sections have been started.
func (b *ConfigBuilder) Sections() int {
	return b.sections
}

// Build returns the complete document.
func (b *ConfigBuilder) Build() string {
	return strings.Join(b.lines, "\n") + "\n"
}

// String returns the document for debugging.
func (b *ConfigBuilder) String() string {
	return b.Build()
}
