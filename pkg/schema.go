package pkg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const payloadSchemaURI = "urn:archie:schema:payload"

type payloadSchema struct {
	compiled *jsonschema.Schema
}

func compilePayloadSchema(schemaJSON string) (*payloadSchema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("jsonschema: parsing schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(payloadSchemaURI, doc); err != nil {
		return nil, fmt.Errorf("jsonschema: adding resource: %w", err)
	}
	compiled, err := c.Compile(payloadSchemaURI)
	if err != nil {
		return nil, fmt.Errorf("jsonschema: compiling schema: %w", err)
	}
	return &payloadSchema{compiled: compiled}, nil
}

// validate checks the JSON form of payload, so structs and maps are
// treated alike.
func (s *payloadSchema) validate(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrValidation, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: decoding payload: %w", ErrValidation, err)
	}
	if err := s.compiled.Validate(inst); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// ValidateJSONSchema returns a validator that fails the chain when the
// action payload does not conform to schemaJSON.
func ValidateJSONSchema(schemaJSON string) (ValidatorFunc, error) {
	s, err := compilePayloadSchema(schemaJSON)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, rc *RequestContext, action Action) (bool, error) {
		if err := s.validate(action.Payload); err != nil {
			return false, err
		}
		return true, nil
	}, nil
}

// MustValidateJSONSchema is like ValidateJSONSchema but panics on an
// invalid schema.
func MustValidateJSONSchema(schemaJSON string) ValidatorFunc {
	v, err := ValidateJSONSchema(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidatePayload returns a handler performing the same check, for use as
// a step inside Do.
func ValidatePayload(schemaJSON string) (HandlerFunc, error) {
	s, err := compilePayloadSchema(schemaJSON)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, rc *RequestContext, action Action) error {
		return s.validate(action.Payload)
	}, nil
}
