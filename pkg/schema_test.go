package pkg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const filePathSchema = `{
	"type": "object",
	"properties": {
		"filePath": {"type": "string"}
	},
	"required": ["filePath"]
}`

type readFilePayload struct {
	FilePath string `json:"filePath"`
}

func TestValidateJSONSchema(t *testing.T) {
	sys := New()
	sys.When("READ_FILE").
		Validate(MustValidateJSONSchema(filePathSchema)).
		Do(setBody("read"))

	rc, err := sys.Handle(context.Background(), "READ_FILE", map[string]any{"filePath": "/tmp/x", "extra": true})
	require.NoError(t, err, "unknown attributes are allowed")
	assert.Equal(t, "read", rc.Body())

	rc, err = sys.Handle(context.Background(), "READ_FILE", readFilePayload{FilePath: "/tmp/y"})
	require.NoError(t, err, "structs are validated through their JSON form")
	assert.Equal(t, "read", rc.Body())

	_, err = sys.Handle(context.Background(), "READ_FILE", map[string]any{"filePath": 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidatePayloadHandler(t *testing.T) {
	validate, err := ValidatePayload(filePathSchema)
	require.NoError(t, err)

	sys := New()
	sys.When("READ_FILE").Do(validate, setBody("read"))

	_, err = sys.Handle(context.Background(), "READ_FILE", map[string]any{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateJSONSchemaRejectsBadSchema(t *testing.T) {
	_, err := ValidateJSONSchema(`{"type": `)
	assert.Error(t, err)

	_, err = ValidateJSONSchema(`{"type": 12}`)
	assert.Error(t, err)

	assert.Panics(t, func() { MustValidateJSONSchema(`not json`) })
}
