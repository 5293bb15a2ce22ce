package ingest

import (
	_ "embed"
	"strings"
)

// jsonPlaceholder is the substitution point in the chat template.
const jsonPlaceholder = "[[ADD_JSON_HERE]]"

//go:embed chat_template.html
var chatTemplate string

// RenderChatHTML substitutes the canonical trace JSON into the embedded chat
// presentation template. Pure string substitution; the template renders the
// conversation client-side.
func RenderChatHTML(canonicalJSON []byte) string {
	return strings.Replace(chatTemplate, jsonPlaceholder, string(canonicalJSON), 1)
}
