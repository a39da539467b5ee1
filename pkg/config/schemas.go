package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ProvisioningSchema is the name of the built-in configuration schema.
const ProvisioningSchema = "provisioning"

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	return newSchemaRegistry(cuecontext.New())
}

func newSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(ProvisioningSchema, builtinProvisioningSchema, "#ProvisioningConfig"); err != nil {
		panic(fmt.Sprintf("built-in schema does not compile: %v", err))
	}

	return sr
}

// RegisterSchema compiles source and registers the definition named def
// (e.g. "#Config") under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, def string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	schema := val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.schemas[name] = schema
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema. Data is
// encoded through its JSON tags.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in schema definitions.
//
// Every field is optional so a file may set only what differs from the
// defaults. Definitions are closed, so misspelled keys are rejected.
const builtinProvisioningSchema = `
#Name:   string & =~"^[a-z_][a-z0-9_-]{0,31}$"
#Ident:  string & =~"^[a-z_][a-z0-9_]{0,62}$"
#Path:   string & =~"^/"
#Port:   int & >=1 & <=65535
#Size:   string & =~"^[0-9]+[KkMmGg]?$"
#Counts: int & >=1

#ProvisioningConfig: {
	app?: {
		name?:           #Name
		user?:           #Name
		dir?:            #Path
		log_dir?:        #Path
		script?:         string & !=""
		port?:           #Port
		env?:            string & !=""
		instances?:      #Counts
		max_memory?:     #Size
		session_secret?: string & !=""
	}

	database?: {
		name?:     #Ident
		user?:     #Ident
		password?: string & !=""
		host?:     string & !=""
		port?:     #Port
	}

	node?: {
		version?: string & =~"^[0-9]+$"
	}

	nginx?: {
		server_name?:          string & =~"^[A-Za-z0-9_.*-]+( [A-Za-z0-9_.*-]+)*$"
		client_max_body_size?: #Size
	}

	fail2ban?: {
		bantime?:  #Counts
		findtime?: #Counts
		maxretry?: #Counts
	}

	logs?: {
		retention?: #Counts
	}

	backup?: {
		dir?:            #Path
		retention_days?: #Counts
		schedule?:       string & !=""
	}

	system?: {
		apt_max_age_hours?: #Counts
	}

	templates?: {
		dir?: string
	}

	policy?: {
		dir?: string
	}
}
`
