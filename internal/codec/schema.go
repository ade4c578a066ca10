package codec

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	sessionSchema = "schema/session.schema.json"
	projectSchema = "schema/project.schema.json"
	configSchema  = "schema/config.schema.json"
)

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

// sessionFields are the top-level keys this version writes. Anything else
// in a session record is preserved through Extra.
var sessionFields = map[string]struct{}{
	"schema_version": {}, "session_id": {}, "project_slug": {}, "status": {}, "intent": {},
	"roadmap_ref": {}, "started_at": {}, "last_heartbeat": {}, "ended_at": {}, "outcome": {},
	"parked_reason": {}, "current_activity": {}, "awaiting_action": {}, "events": {},
	"git_branch": {}, "files_changed": {}, "commits": {}, "decisions": {}, "open_questions": {},
	"next_steps": {}, "tasks": {},
}

var sessionTimeFields = []string{"started_at", "last_heartbeat", "ended_at"}

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	compiled = make(map[string]*jsonschema.Schema, 3)
	for _, name := range []string{sessionSchema, projectSchema, configSchema} {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			compileErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		schema, err := compiler.Compile(data)
		if err != nil {
			compileErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		compiled[name] = schema
	}
}

// validateAgainst checks raw JSON against the named embedded schema.
func validateAgainst(name string, data []byte) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	schema, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}

	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors))
	for field, verr := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %v", field, verr))
	}
	sort.Strings(msgs)
	if len(msgs) == 0 {
		return fmt.Errorf("schema validation failed")
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}
