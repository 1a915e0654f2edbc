package renewals

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// DefaultDocumentType backstops document types without their own template
// set in the catalog file.
const DefaultDocumentType = "default"

// Catalog holds the reminder message templates, keyed by document type and
// stage. Templates are parsed once at load; rendering uses missingkey=error
// so a template asking for a variable the sweep cannot supply fails before
// anything is sent.
type Catalog struct {
	templates map[string]map[string]*template.Template
}

type catalogFile struct {
	Templates map[string]map[string]string `yaml:"templates"`
}

// LoadCatalog reads and parses the YAML template file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read renewal templates: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog parses YAML catalog bytes. Every template body is compiled
// eagerly so syntax errors surface at startup, not mid-sweep.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse renewal templates: %w", err)
	}

	cat := &Catalog{templates: make(map[string]map[string]*template.Template, len(file.Templates))}
	for docType, stages := range file.Templates {
		compiled := make(map[string]*template.Template, len(stages))
		for stage, text := range stages {
			tmpl, err := template.New(docType + "/" + stage).Option("missingkey=error").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("renewal template %s/%s: %w", docType, stage, err)
			}
			compiled[stage] = tmpl
		}
		cat.templates[docType] = compiled
	}
	if len(cat.templates) == 0 {
		return nil, errors.New("renewal template catalog is empty")
	}
	return cat, nil
}

// Has reports whether a template exists for the document type and stage,
// either directly or through the default set.
func (c *Catalog) Has(documentType, stage string) bool {
	_, ok := c.lookup(documentType, stage)
	return ok
}

// Render executes the template for the document type and stage. A reference
// to a variable missing from vars is an error, not an empty string in the
// customer's message.
func (c *Catalog) Render(documentType, stage string, vars map[string]any) (string, error) {
	tmpl, ok := c.lookup(documentType, stage)
	if !ok {
		return "", fmt.Errorf("no renewal template for %s/%s", documentType, stage)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render renewal template %s/%s: %w", documentType, stage, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (c *Catalog) lookup(documentType, stage string) (*template.Template, bool) {
	if stages, ok := c.templates[documentType]; ok {
		if tmpl, ok := stages[stage]; ok {
			return tmpl, true
		}
	}
	if stages, ok := c.templates[DefaultDocumentType]; ok {
		if tmpl, ok := stages[stage]; ok {
			return tmpl, true
		}
	}
	return nil, false
}
