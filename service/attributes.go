package service

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// AttributeDefinition describes one configuration attribute of a service.
// Schema is a JSON schema fragment for the attribute value; a nil schema
// accepts any value.
type AttributeDefinition struct {
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
	Default     any            `json:"default,omitempty"`
}

// AttributeSchema maps attribute names to their definitions
type AttributeSchema map[string]AttributeDefinition

// Names returns the attribute names sorted
func (s AttributeSchema) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Merge returns a copy of s extended by other. Definitions already in s win.
func (s AttributeSchema) Merge(other AttributeSchema) AttributeSchema {
	merged := maps.Clone(other)
	if merged == nil {
		merged = make(AttributeSchema, len(s))
	}
	maps.Copy(merged, s)
	return merged
}

// Defaults returns the default value of every attribute that declares one
func (s AttributeSchema) Defaults() map[string]any {
	defaults := make(map[string]any)
	for name, def := range s {
		if def.Default != nil {
			defaults[name] = def.Default
		}
	}
	return defaults
}

// builtinAttributes are understood by every service
var builtinAttributes = AttributeSchema{
	"autostart": {
		Description: "start the service together with its provider",
		Schema:      map[string]any{"type": "boolean"},
		Default:     false,
	},
	"logLevel": {
		Description: "minimum level of the service's log records",
		Schema: map[string]any{
			"type": "string",
			"enum": []any{"debug", "info", "warn", "error", "DEBUG", "INFO", "WARN", "ERROR"},
		},
	},
	"description": {
		Description: "human readable purpose of the service",
		Schema:      map[string]any{"type": "string"},
	},
	"timeout": {
		Description: "transition timeouts per action, in seconds or as duration strings",
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": []any{"number", "string"}},
		},
	},
}

var compiledBuiltins = mustCompile(builtinAttributes)

// compiledSchema holds one compiled JSON schema per attribute; nil entries
// accept any value
type compiledSchema map[string]*gojsonschema.Schema

func (s AttributeSchema) compile() (compiledSchema, error) {
	compiled := make(compiledSchema, len(s))
	for _, name := range s.Names() {
		def := s[name]
		if def.Schema == nil {
			compiled[name] = nil
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Schema))
		if err != nil {
			return nil, errors.WrapInvalid(err, "AttributeSchema", "compile",
				fmt.Sprintf("schema of attribute %q", name))
		}
		compiled[name] = schema
	}
	return compiled, nil
}

func mustCompile(s AttributeSchema) compiledSchema {
	compiled, err := s.compile()
	if err != nil {
		panic(err)
	}
	return compiled
}

// validate checks value against the schema of name. known is false when the
// schema does not define the attribute.
func (c compiledSchema) validate(name string, value any) (known bool, err error) {
	schema, known := c[name]
	if !known || schema == nil {
		return known, nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return true, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"AttributeSchema", "validate", fmt.Sprintf("attribute %q decoding", name))
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return true, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(messages, "; ")),
			"AttributeSchema", "validate", fmt.Sprintf("attribute %q", name))
	}
	return true, nil
}
