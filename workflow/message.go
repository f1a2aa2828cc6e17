package workflow

import "reflect"

// Message is the unit of communication flowing along graph edges: a payload
// tagged with the type name handlers dispatch on. Handlers are selected by
// Type, never by inspecting Payload.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewMessage tags payload with its derived type name.
func NewMessage(payload any) Message {
	return Message{Type: TypeName(payload), Payload: payload}
}

// TypeName derives the dispatch tag for a payload from its Go type name.
// Pointers are flattened so *T and T share a tag; unnamed types fall back to
// their full string form.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}
