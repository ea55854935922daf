package gamification

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/metal-master/backend/internal/models"
)

const awardSchemaURL = "https://schemas.metalmaster.app/practice/award-request.schema.json"

//go:embed award_request.schema.json
var awardSchemaJSON []byte

var (
	awardSchemaOnce sync.Once
	awardSchema     *jsonschema.Schema
	awardSchemaErr  error
)

func awardRequestSchema() (*jsonschema.Schema, error) {
	awardSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(awardSchemaURL, bytes.NewReader(awardSchemaJSON)); err != nil {
			awardSchemaErr = fmt.Errorf("add award schema resource: %w", err)
			return
		}
		awardSchema, awardSchemaErr = compiler.Compile(awardSchemaURL)
		if awardSchemaErr != nil {
			awardSchemaErr = fmt.Errorf("compile award schema: %w", awardSchemaErr)
		}
	})
	return awardSchema, awardSchemaErr
}

// ErrMalformedBody is returned when an award body is not JSON at all.
var ErrMalformedBody = errors.New("malformed request body")

// DecodeAwardRequest checks a raw award body against the award request
// schema and decodes it. Every metric is required; a missing field is an
// *InvalidInputError, never a zero.
func DecodeAwardRequest(data []byte) (models.AwardRequest, error) {
	var req models.AwardRequest

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return req, ErrMalformedBody
	}

	schema, err := awardRequestSchema()
	if err != nil {
		return req, err
	}
	if err := schema.Validate(doc); err != nil {
		return req, &InvalidInputError{Violations: requestViolations(err)}
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return req, ErrMalformedBody
	}
	return req, nil
}

// requestViolations flattens a schema error tree into "field: message"
// lines, one per leaf cause.
func requestViolations(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.ReplaceAll(strings.TrimPrefix(e.InstanceLocation, "/"), "/", ".")
			if field == "" {
				field = "body"
			}
			out = append(out, field+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}
