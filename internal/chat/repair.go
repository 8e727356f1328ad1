package chat

import "github.com/eldtechnologies/lucidflow/internal/models"

// EnsureAlternation returns turns with an empty turn of the opposite role
// inserted between any two adjacent turns that share a role. Roles other
// than user and model are treated as model. The first turn is kept as is.
func EnsureAlternation(turns []models.ChatTurn) []models.ChatTurn {
	out := make([]models.ChatTurn, 0, len(turns))
	for _, t := range turns {
		if t.Role != models.RoleUser {
			t.Role = models.RoleModel
		}
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out = append(out, models.NewTurn(t.Role.Opposite(), ""))
		}
		t.Parts = append([]models.Part(nil), t.Parts...)
		out = append(out, t)
	}
	return out
}

// LeadWithUser prepends an empty user turn when turns opens on the model,
// since chat backends expect the user to speak first.
func LeadWithUser(turns []models.ChatTurn) []models.ChatTurn {
	if len(turns) == 0 || turns[0].Role == models.RoleUser {
		return turns
	}
	return append([]models.ChatTurn{models.NewTurn(models.RoleUser, "")}, turns...)
}

// Alternates reports whether no two adjacent turns share a role.
func Alternates(turns []models.ChatTurn) bool {
	for i := 1; i < len(turns); i++ {
		if turns[i].Role == turns[i-1].Role {
			return false
		}
	}
	return true
}
