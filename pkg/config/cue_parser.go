package config

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CUEParser parses CUE configuration files against the built-in schema.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:            ctx,
		schemaRegistry: newSchemaRegistry(ctx),
	}
}

// ParseFile parses a CUE file and returns its content as a nested map
// keyed like the configuration. The file is unified with the
// provisioning schema, so type errors and unknown keys are reported with
// their position.
func (cp *CUEParser) ParseFile(path string) (map[string]interface{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return cp.parse(string(content), path)
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(content string) (map[string]interface{}, error) {
	return cp.parse(content, "inline")
}

func (cp *CUEParser) parse(content, filename string) (map[string]interface{}, error) {
	val := cp.ctx.CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, cp.convertCUEErrors(err, filename)
	}

	schema, ok := cp.schemaRegistry.GetSchema(ProvisioningSchema)
	if !ok {
		return nil, fmt.Errorf("schema %s not registered", ProvisioningSchema)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cp.convertCUEErrors(err, filename)
	}

	var out map[string]interface{}
	if err := unified.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	return out, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors. Positions in
// filename are preferred over positions in the schema.
func (cp *CUEParser) convertCUEErrors(err error, filename string) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int

		for i, pos := range errors.Positions(e) {
			if i > 0 && pos.Filename() != filename {
				continue
			}
			file = pos.Filename()
			line = pos.Line()
			column = pos.Column()
			if file == filename {
				break
			}
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// SchemaRegistry returns the schema registry.
func (cp *CUEParser) SchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}
