package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Token   string  `json:"token"`
	IsGroup bool    `json:"is_group"`
	Count   int64   `json:"count"`
	Extends *string `json:"extends"`
	At      *string `json:"at"`
}

func TestDecodeJSON(t *testing.T) {
	raw := []byte(`{"token":"abc","is_group":true,"count":3,"extends":"plain","ignored":1}`)

	out, err := DecodeJSON[samplePayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.Token)
	assert.True(t, out.IsGroup)
	assert.Equal(t, int64(3), out.Count)
	require.NotNil(t, out.Extends)
	assert.Equal(t, "plain", *out.Extends)
	assert.Nil(t, out.At)
}

func TestDecodeJSONObjectIntoString(t *testing.T) {
	raw := []byte(`{"extends":{"b":2,"a":"x"},"at":["u1","u2"]}`)

	out, err := DecodeJSON[samplePayload](raw)
	require.NoError(t, err)
	require.NotNil(t, out.Extends)
	assert.JSONEq(t, `{"a":"x","b":2}`, *out.Extends)
	require.NotNil(t, out.At)
	assert.JSONEq(t, `["u1","u2"]`, *out.At)
}

func TestDecodeJSONEmpty(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte("null"), []byte("{}")} {
		out, err := DecodeJSON[samplePayload](raw)
		require.NoError(t, err)
		assert.Empty(t, out.Token)
	}
}

func TestDecodeJSONTypeMismatch(t *testing.T) {
	_, err := DecodeJSON[samplePayload]([]byte(`{"is_group":"yes"}`))
	assert.Error(t, err)

	out, err := DecodeJSON[samplePayload]([]byte(`{"is_group":"true"}`), WithWeaklyTypedInput(true))
	require.NoError(t, err)
	assert.True(t, out.IsGroup)
}

func TestDecodeJSONErrorUnused(t *testing.T) {
	_, err := DecodeJSON[samplePayload]([]byte(`{"token":"a","extra":1}`), Options{ErrorUnused: true})
	assert.Error(t, err)
}

func TestParseStructJSONRejectsNonObject(t *testing.T) {
	_, err := ParseStructJSON([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = ParseStructJSON([]byte(`{bad`))
	assert.Error(t, err)
}
