package models

// Role is the speaker of a ChatTurn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Opposite returns the other role.
func (r Role) Opposite() Role {
	if r == RoleUser {
		return RoleModel
	}
	return RoleUser
}

// Part is a text fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// ChatTurn is the unit of context handed to a generative backend.
type ChatTurn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTurn builds a single-part turn.
func NewTurn(role Role, text string) ChatTurn {
	return ChatTurn{Role: role, Parts: []Part{{Text: text}}}
}

// Text joins all parts of the turn.
func (t ChatTurn) Text() string {
	switch len(t.Parts) {
	case 0:
		return ""
	case 1:
		return t.Parts[0].Text
	}
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}
