package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://schemas.metalmaster.app/practice/ruleset.schema.json"

//go:embed ruleset.schema.json
var schemaJSON []byte

//go:embed default.json
var defaultJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func rulesetSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// Default returns the embedded ruleset shipped with the binary.
func Default() (*Ruleset, error) {
	return Parse(defaultJSON)
}

// Load reads and validates a ruleset document from path.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	return Parse(data)
}

// Parse validates a raw ruleset document. It either returns a fully
// populated ruleset or a *ValidationError carrying every violation found
// by both the schema pass and the cross-field pass.
func Parse(data []byte) (*Ruleset, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}

	schema, err := rulesetSchema()
	if err != nil {
		return nil, err
	}

	var violations []Violation
	if err := schema.Validate(doc); err != nil {
		violations = schemaViolations(err)
	}

	var rs Ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		if len(violations) == 0 {
			return nil, fmt.Errorf("decode ruleset: %w", err)
		}
		return nil, &ValidationError{Violations: violations}
	}

	reported := make(map[string]bool, len(violations))
	for _, v := range violations {
		reported[v.Field] = true
	}
	violations = append(violations, rs.validate(reported)...)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	rs.buildIndex()
	return &rs, nil
}

// schemaViolations flattens a schema error tree into its leaf causes.
func schemaViolations(err error) []Violation {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Message: err.Error()}}
	}

	var out []Violation
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, Violation{Field: pointerToField(e.InstanceLocation), Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// pointerToField turns "/lessons/2/aggro_tempo" into "lessons[2].aggro_tempo".
func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for i, tok := range strings.Split(ptr, "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil {
			b.WriteString("[" + tok + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}
