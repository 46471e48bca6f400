package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["confidence", "routingHint"],
  "properties": {
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "routingHint": {"type": "string", "enum": ["STANDARD", "FAST_TRACK"]}
  }
}`

func TestValidate_ConformingDocument(t *testing.T) {
	result, err := Validate([]byte(`{"confidence":0.8,"routingHint":"STANDARD"}`), testSchema)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	result, err := Validate([]byte(`{"confidence":0.8}`), testSchema)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Describe(), "routingHint")
}

func TestValidate_WrongTypeAndEnum(t *testing.T) {
	result, err := Validate([]byte(`{"confidence":"high","routingHint":"EXPRESS"}`), testSchema)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)
}

func TestValidate_NotJSONIsError(t *testing.T) {
	_, err := Validate([]byte(`the applicant looks fine`), testSchema)
	assert.Error(t, err)
}
