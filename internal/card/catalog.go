package card

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ID names a template in the catalog.
type ID string

const (
	Welcome                ID = "welcome"
	ComposeBasicInfo       ID = "composeBasicInfo"
	ComposeApproversChoice ID = "composeApproversChoice"
	ComposeApproversText   ID = "composeApproversText"
	NotInstalled           ID = "notInstalled"
	Editor                 ID = "editor"
	EditorPreview          ID = "editorPreview"
	ApprovalBase           ID = "approvalBase"
	ApprovalForSender      ID = "approvalForSender"
	ApprovalForApprover    ID = "approvalForApprover"
	ApprovalApproved       ID = "approvalApproved"
	ApprovalRejected       ID = "approvalRejected"
	ApprovalCancelled      ID = "approvalCancelled"
	BotSearch              ID = "botSearch"
	BotSearchResults       ID = "botSearchResults"
	BotSearchResult        ID = "botSearchResult"
)

// UnknownCardError reports a card id with no template or handler.
type UnknownCardError struct {
	ID string
}

func (e *UnknownCardError) Error() string {
	return "Unknown card " + e.ID
}

//go:embed templates/*.json
var templateFS embed.FS

//go:embed schema/adaptivecard.schema.json
var envelopeSchema []byte

// Template is a parsed card template.
type Template struct {
	ID   ID
	body any
}

// Catalog is the read-only set of templates loaded at start.
type Catalog struct {
	templates map[ID]Template
}

// NewCatalog loads and validates every embedded template.
func NewCatalog() (*Catalog, error) {
	schema, err := compileSchema("adaptivecard.schema.json", envelopeSchema)
	if err != nil {
		return nil, err
	}
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	c := &Catalog{templates: make(map[ID]Template, len(entries))}
	for _, entry := range entries {
		name := entry.Name()
		raw, err := templateFS.ReadFile(path.Join("templates", name))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		id := ID(strings.TrimSuffix(name, ".json"))
		tpl, err := parseTemplate(id, raw, schema)
		if err != nil {
			return nil, err
		}
		c.templates[id] = tpl
	}
	return c, nil
}

func parseTemplate(id ID, raw []byte, schema *jsonschema.Schema) (Template, error) {
	var body any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Template{}, fmt.Errorf("parse template %s: %w", id, err)
	}
	if err := schema.Validate(body); err != nil {
		return Template{}, fmt.Errorf("template %s: %w", id, err)
	}
	return Template{ID: id, body: body}, nil
}

// Lookup returns the template registered under id.
func (c *Catalog) Lookup(id ID) (Template, error) {
	tpl, ok := c.templates[id]
	if !ok {
		return Template{}, &UnknownCardError{ID: string(id)}
	}
	return tpl, nil
}

// Render looks up id and renders it with data.
func (c *Catalog) Render(id ID, data any) (json.RawMessage, error) {
	tpl, err := c.Lookup(id)
	if err != nil {
		return nil, err
	}
	out, err := Render(tpl, data)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// IDs lists the registered template ids in sorted order.
func (c *Catalog) IDs() []ID {
	out := make([]ID, 0, len(c.templates))
	for id := range c.templates {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}
