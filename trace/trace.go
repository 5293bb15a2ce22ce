package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ObjectTag is the constant object type of every trace.
const ObjectTag = "chat.trace"

// Message roles accepted in a trace.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidationError describes why a submitted payload was rejected. The reason
// describes the client's own payload and is safe to return to the client.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid trace: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Message is a single conversational turn. Immutable once constructed.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// Trace is the canonical unit of ingestion. Constructed only via Normalize and
// never mutated afterwards. ID is the idempotency key: it fully determines the
// storage location together with SystemFingerprint and Created.
type Trace struct {
	ID                string           `json:"id" validate:"required"`
	Object            string           `json:"object" validate:"required"`
	Created           int64            `json:"created"`
	Model             string           `json:"model" validate:"required"`
	SystemFingerprint string           `json:"system_fingerprint" validate:"required"`
	Messages          []Message        `json:"messages" validate:"required,min=1,dive"`
	Choices           []map[string]any `json:"choices,omitempty"`
	Usage             map[string]any   `json:"usage,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize constructs a Trace from an untyped payload, applying server-side
// defaults and rejecting any invariant violation with a *ValidationError.
// No partially constructed Trace is ever returned.
func Normalize(raw map[string]any) (*Trace, error) {
	tr := &Trace{}

	messages, err := normalizeMessages(raw["messages"])
	if err != nil {
		return nil, err
	}
	tr.Messages = messages

	created, err := normalizeCreated(raw["created"])
	if err != nil {
		return nil, err
	}
	tr.Created = created

	tr.Model, err = optionalString(raw, "model", "")
	if err != nil {
		return nil, err
	}

	tr.ID, err = optionalString(raw, "id", uuid.NewString())
	if err != nil {
		return nil, err
	}

	tr.Object, err = optionalString(raw, "object", ObjectTag)
	if err != nil {
		return nil, err
	}

	tr.SystemFingerprint, err = optionalString(raw, "system_fingerprint", tr.Model)
	if err != nil {
		return nil, err
	}

	// choices and usage are OpenAI-compat passthrough: shape-checked only.
	if v, ok := raw["choices"]; ok && v != nil {
		choices, ok := toMappingSlice(v)
		if !ok {
			return nil, validationErrorf("choices must be a sequence of mappings")
		}
		tr.Choices = choices
	}
	if v, ok := raw["usage"]; ok && v != nil {
		usage, ok := v.(map[string]any)
		if !ok {
			return nil, validationErrorf("usage must be a mapping")
		}
		tr.Usage = usage
	}

	if err := validate.Struct(tr); err != nil {
		return nil, validationErrorf("%s", firstFieldError(err))
	}

	return tr, nil
}

// Representation returns the untyped form of the trace, the inverse of
// Normalize. Normalize(tr.Representation()) yields an equivalent Trace.
func (t *Trace) Representation() map[string]any {
	messages := make([]any, len(t.Messages))
	for i, m := range t.Messages {
		messages[i] = map[string]any{"role": m.Role, "content": m.Content}
	}

	rep := map[string]any{
		"id":                 t.ID,
		"object":             t.Object,
		"created":            t.Created,
		"model":              t.Model,
		"system_fingerprint": t.SystemFingerprint,
		"messages":           messages,
	}
	if len(t.Choices) > 0 {
		choices := make([]any, len(t.Choices))
		for i, c := range t.Choices {
			choices[i] = c
		}
		rep["choices"] = choices
	}
	if len(t.Usage) > 0 {
		rep["usage"] = t.Usage
	}
	return rep
}

// CanonicalJSON returns the canonical serialization persisted to storage.
func (t *Trace) CanonicalJSON() ([]byte, error) {
	return json.Marshal(t)
}

func normalizeMessages(v any) ([]Message, error) {
	if v == nil {
		return nil, validationErrorf("messages are required")
	}

	seq, ok := v.([]any)
	if !ok {
		return nil, validationErrorf("messages must be a sequence")
	}
	if len(seq) == 0 {
		return nil, validationErrorf("messages must not be empty")
	}

	messages := make([]Message, 0, len(seq))
	for i, el := range seq {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, validationErrorf("message %d must be a mapping", i)
		}

		role, ok := m["role"].(string)
		if !ok {
			return nil, validationErrorf("message %d: role is required", i)
		}

		// content must be present but may be the empty string
		rawContent, ok := m["content"]
		if !ok || rawContent == nil {
			return nil, validationErrorf("message %d: content is required", i)
		}
		content, ok := rawContent.(string)
		if !ok {
			return nil, validationErrorf("message %d: content must be a string", i)
		}

		messages = append(messages, Message{Role: role, Content: content})
	}

	return messages, nil
}

// Timestamps outside the years 1..9999 are rejected as not representing a
// real point in time.
const (
	minCreated = -62135596800
	maxCreated = 253402300799
)

// normalizeCreated accepts the integer forms a JSON decoder may produce and
// rejects anything that is not a whole number representable as a timestamp.
func normalizeCreated(v any) (int64, error) {
	var created int64
	switch n := v.(type) {
	case nil:
		return 0, validationErrorf("created is required")
	case int64:
		created = n
	case int:
		created = int64(n)
	case float64:
		if n != math.Trunc(n) {
			return 0, validationErrorf("created must be an integer timestamp")
		}
		created = int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, validationErrorf("created must be an integer timestamp")
		}
		created = i
	default:
		return 0, validationErrorf("created must be an integer timestamp")
	}

	if created < minCreated || created > maxCreated {
		return 0, validationErrorf("created timestamp %d out of range", created)
	}
	return created, nil
}

func optionalString(raw map[string]any, key, fallback string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", validationErrorf("%s must be a string", key)
	}
	return s, nil
}

func toMappingSlice(v any) ([]map[string]any, bool) {
	switch seq := v.(type) {
	case []map[string]any:
		return seq, true
	case []any:
		out := make([]map[string]any, 0, len(seq))
		for _, el := range seq {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	default:
		return nil, false
	}
}

func firstFieldError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", fieldName(fe))
		case "oneof":
			return fmt.Sprintf("%s must be one of: %s", fieldName(fe), fe.Param())
		case "min":
			return fmt.Sprintf("%s must have at least %s elements", fieldName(fe), fe.Param())
		default:
			return fmt.Sprintf("%s is invalid", fieldName(fe))
		}
	}
	return err.Error()
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "SystemFingerprint":
		return "system_fingerprint"
	default:
		return strings.ToLower(fe.Field())
	}
}
