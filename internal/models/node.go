package models

// Position is a node's location on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AgentInfo describes what kind of agent a node hosts and, for live
// sources, where its content comes from.
type AgentInfo struct {
	SubType            string `json:"subType"`
	Watch              bool   `json:"watch,omitempty"`  // refresh Source on every context build
	Source             string `json:"source,omitempty"` // URL or repository reference
	SystemInstructions string `json:"systemInstructions,omitempty"`
}

// NodeData is the mutable payload of a node.
type NodeData struct {
	Label              string    `json:"label"`
	Icon               string    `json:"icon,omitempty"`
	Color              string    `json:"color,omitempty"`
	Agent              AgentInfo `json:"agent"`
	ChatData           []Message `json:"chatData,omitempty"`
	Temperature        float64   `json:"temperature,omitempty"`
	SystemInstructions string    `json:"systemInstructions,omitempty"`
}

// Node is a graph vertex holding its own message history.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// IsLive reports whether the node's content is refreshed from Source.
func (n Node) IsLive() bool {
	return n.Data.Agent.Watch && n.Data.Agent.Source != ""
}

// DisplayName returns the label, falling back to the id.
func (n Node) DisplayName() string {
	if n.Data.Label != "" {
		return n.Data.Label
	}
	return n.ID
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	out.Data.ChatData = CloneMessages(n.Data.ChatData)
	return out
}

// Edge is a directed dependency: Source feeds Target.
type Edge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated,omitempty"`
}

// Touches reports whether either endpoint is nodeID.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}
