package models

// Message is one entry of a node's chat history.
type Message struct {
	ID        string  `json:"id"`        // ULID, also the ordering key
	Sender    string  `json:"sender"`    // free-form, normalized to a role when formatted
	Message   *string `json:"message"`   // nullable text payload
	CreatedAt int64   `json:"createdAt"` // Unix ms
	Error     bool    `json:"error"`

	// IsEnabledByNode maps a consumer node id to whether this message is
	// visible in context built for that consumer.
	IsEnabledByNode map[string]bool `json:"isEnabledByNode,omitempty"`
}

// EnabledFor reports whether the message contributes to context built for
// consumerID. Consumers missing from IsEnabledByNode see the message.
func (m Message) EnabledFor(consumerID string) bool {
	enabled, ok := m.IsEnabledByNode[consumerID]
	if !ok {
		return true
	}
	return enabled
}

// Text returns the message payload, or "" when it is null.
func (m Message) Text() string {
	if m.Message == nil {
		return ""
	}
	return *m.Message
}

// Clone returns a deep copy so callers can't mutate graph state through it.
func (m Message) Clone() Message {
	out := m
	if m.Message != nil {
		text := *m.Message
		out.Message = &text
	}
	if m.IsEnabledByNode != nil {
		out.IsEnabledByNode = make(map[string]bool, len(m.IsEnabledByNode))
		for k, v := range m.IsEnabledByNode {
			out.IsEnabledByNode[k] = v
		}
	}
	return out
}

// CloneMessages deep-copies a message slice. A nil input stays nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// StringPtr is a convenience for building messages with literal text.
func StringPtr(s string) *string {
	return &s
}
