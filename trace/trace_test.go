package trace

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() map[string]any {
	return map[string]any{
		"created": int64(1700000000),
		"model":   "olmoe-1b-7b",
		"messages": []any{
			map[string]any{"role": "system", "content": "You are a helpful assistant."},
			map[string]any{"role": "user", "content": "What is a LLM?"},
			map[string]any{"role": "assistant", "content": "A large language model."},
		},
	}
}

func TestNormalize_Defaults(t *testing.T) {
	tr, err := Normalize(validPayload())
	require.NoError(t, err)

	assert.Equal(t, ObjectTag, tr.Object)
	assert.Equal(t, "olmoe-1b-7b", tr.Model)
	assert.Equal(t, tr.Model, tr.SystemFingerprint)
	assert.Len(t, tr.Messages, 3)
	assert.Equal(t, int64(1700000000), tr.Created)

	// server-assigned id must be a well-formed UUID
	_, err = uuid.Parse(tr.ID)
	assert.NoError(t, err)
}

func TestNormalize_ExplicitFieldsPreserved(t *testing.T) {
	payload := validPayload()
	payload["id"] = "abc"
	payload["system_fingerprint"] = "gpt-x"
	payload["choices"] = []any{
		map[string]any{"index": float64(0), "finish_reason": "stop"},
	}
	payload["usage"] = map[string]any{"total_tokens": float64(42)}

	tr, err := Normalize(payload)
	require.NoError(t, err)

	assert.Equal(t, "abc", tr.ID)
	assert.Equal(t, "gpt-x", tr.SystemFingerprint)
	assert.Len(t, tr.Choices, 1)
	assert.Equal(t, "stop", tr.Choices[0]["finish_reason"])
	assert.Equal(t, float64(42), tr.Usage["total_tokens"])
}

func TestNormalize_RejectsEmptyMessages(t *testing.T) {
	payload := validPayload()
	payload["messages"] = []any{}

	_, err := Normalize(payload)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "messages")
}

func TestNormalize_RejectsMissingMessages(t *testing.T) {
	payload := validPayload()
	delete(payload, "messages")

	var verr *ValidationError
	_, err := Normalize(payload)
	require.ErrorAs(t, err, &verr)
}

func TestNormalize_RejectsUnknownRole(t *testing.T) {
	payload := validPayload()
	payload["messages"] = []any{
		map[string]any{"role": "guest", "content": "hi"},
	}

	_, err := Normalize(payload)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "role")
}

func TestNormalize_RejectsMissingContent(t *testing.T) {
	payload := validPayload()
	payload["messages"] = []any{
		map[string]any{"role": "user"},
	}

	var verr *ValidationError
	_, err := Normalize(payload)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "content")
}

func TestNormalize_AllowsEmptyContent(t *testing.T) {
	payload := validPayload()
	payload["messages"] = []any{
		map[string]any{"role": "assistant", "content": ""},
	}

	tr, err := Normalize(payload)
	require.NoError(t, err)
	assert.Equal(t, "", tr.Messages[0].Content)
}

func TestNormalize_CreatedForms(t *testing.T) {
	for name, v := range map[string]any{
		"int":         1700000000,
		"int64":       int64(1700000000),
		"float64":     float64(1700000000),
		"json number": json.Number("1700000000"),
	} {
		t.Run(name, func(t *testing.T) {
			payload := validPayload()
			payload["created"] = v
			tr, err := Normalize(payload)
			require.NoError(t, err)
			assert.Equal(t, int64(1700000000), tr.Created)
		})
	}
}

func TestNormalize_RejectsBadCreated(t *testing.T) {
	for name, v := range map[string]any{
		"missing":      nil,
		"string":       "1700000000",
		"fractional":   float64(1700000000.5),
		"out of range": int64(1 << 60),
	} {
		t.Run(name, func(t *testing.T) {
			payload := validPayload()
			if v == nil {
				delete(payload, "created")
			} else {
				payload["created"] = v
			}
			var verr *ValidationError
			_, err := Normalize(payload)
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Reason, "created")
		})
	}
}

func TestNormalize_RejectsMissingModel(t *testing.T) {
	payload := validPayload()
	delete(payload, "model")

	var verr *ValidationError
	_, err := Normalize(payload)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "model")
}

func TestNormalize_RejectsMalformedPassthrough(t *testing.T) {
	payload := validPayload()
	payload["choices"] = []any{"not-a-mapping"}
	var verr *ValidationError
	_, err := Normalize(payload)
	require.ErrorAs(t, err, &verr)

	payload = validPayload()
	payload["usage"] = []any{}
	_, err = Normalize(payload)
	require.ErrorAs(t, err, &verr)
}

func TestNormalize_RoundTrip(t *testing.T) {
	payload := validPayload()
	payload["id"] = "trace-1"
	payload["usage"] = map[string]any{"total_tokens": float64(7)}

	tr, err := Normalize(payload)
	require.NoError(t, err)

	again, err := Normalize(tr.Representation())
	require.NoError(t, err)
	assert.Equal(t, tr, again)
}

func TestCanonicalJSON_OmitsEmptyPassthrough(t *testing.T) {
	tr, err := Normalize(validPayload())
	require.NoError(t, err)

	data, err := tr.CanonicalJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "choices")
	assert.NotContains(t, decoded, "usage")
	assert.Equal(t, ObjectTag, decoded["object"])
}
