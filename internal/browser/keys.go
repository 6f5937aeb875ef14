package browser

import "strings"

// Special keys use the WebDriver private-use code points so the same
// string can be handed straight to a WebDriver endpoint.
const (
	KeyBackspace = "\ue003"
	KeyTab       = "\ue004"
	KeyReturn    = "\ue006"
	KeyEnter     = "\ue007"
	KeyEscape    = "\ue00c"
	KeyDelete    = "\ue017"
)

// keyNames maps special key runes to DOM key names.
var keyNames = map[rune]string{
	'\ue003': "Backspace",
	'\ue004': "Tab",
	'\ue006': "Enter",
	'\ue007': "Enter",
	'\ue00c': "Escape",
	'\ue017': "Delete",
}

// KeyChunk is either a run of plain text or a single named key.
type KeyChunk struct {
	Text string
	Key  string // DOM key name, e.g. "Enter"
}

// SplitKeys splits text into plain runs and named keys, preserving order.
// Transports without native WebDriver key handling use it to decide when
// to insert text and when to dispatch a key event.
func SplitKeys(text string) []KeyChunk {
	var chunks []KeyChunk
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			chunks = append(chunks, KeyChunk{Text: plain.String()})
			plain.Reset()
		}
	}
	for _, r := range text {
		if name, ok := keyNames[r]; ok {
			flush()
			chunks = append(chunks, KeyChunk{Key: name})
			continue
		}
		plain.WriteRune(r)
	}
	flush()
	return chunks
}
