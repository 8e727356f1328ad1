// Package lucidflow provides a client for the LucidFlow context server.
package lucidflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultSession is the session the server opens at startup.
const DefaultSession = "lucid-flow-session"

// Client is a LucidFlow API client bound to one session.
type Client struct {
	BaseURL    string
	Session    string
	ClientID   string // sent as X-LucidFlow-Client
	ModelKey   string // sent as X-LucidFlow-Model-Key
	HTTPClient *http.Client
}

// NewClient creates a new LucidFlow client.
func NewClient(baseURL, session string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if session == "" {
		session = DefaultSession
	}
	return &Client{
		BaseURL:    baseURL,
		Session:    session,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LucidFlow error %d: %s", e.Status, e.Message)
}

func (c *Client) doRequest(method, path string, body interface{}) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ClientID != "" {
		req.Header.Set("X-LucidFlow-Client", c.ClientID)
	}
	if c.ModelKey != "" {
		req.Header.Set("X-LucidFlow-Model-Key", c.ModelKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}

// do sends the request and decodes a JSON answer into out, if given.
func (c *Client) do(method, path string, body, out interface{}) error {
	respBody, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) sessionPath(parts ...string) string {
	p := "/sessions/" + url.PathEscape(c.Session)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Checks  map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do("GET", "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Message is one entry of a node's history.
type Message struct {
	ID              string          `json:"id"`
	Sender          string          `json:"sender"`
	Message         *string         `json:"message"`
	CreatedAt       int64           `json:"createdAt"`
	Error           bool            `json:"error"`
	IsEnabledByNode map[string]bool `json:"isEnabledByNode,omitempty"`
}

// Text returns the message payload, or "" when it is null.
func (m Message) Text() string {
	if m.Message == nil {
		return ""
	}
	return *m.Message
}

// Agent describes a node's agent and live source.
type Agent struct {
	SubType            string `json:"subType"`
	Watch              bool   `json:"watch,omitempty"`
	Source             string `json:"source,omitempty"`
	SystemInstructions string `json:"systemInstructions,omitempty"`
}

// NodeData is the payload of a node.
type NodeData struct {
	Label              string    `json:"label"`
	Icon               string    `json:"icon,omitempty"`
	Color              string    `json:"color,omitempty"`
	Agent              Agent     `json:"agent"`
	ChatData           []Message `json:"chatData,omitempty"`
	Temperature        float64   `json:"temperature,omitempty"`
	SystemInstructions string    `json:"systemInstructions,omitempty"`
}

// Position is a canvas location.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a graph vertex.
type Node struct {
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type,omitempty"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge feeds Source into Target.
type Edge struct {
	ID       string `json:"id,omitempty"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Animated bool   `json:"animated,omitempty"`
}

// Viewport is the saved canvas transform.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Session is a full graph snapshot.
type Session struct {
	Key      string    `json:"key"`
	Nodes    []Node    `json:"nodes"`
	Edges    []Edge    `json:"edges"`
	Viewport *Viewport `json:"viewport,omitempty"`
}

// Snapshot returns the whole session graph.
func (c *Client) Snapshot() (*Session, error) {
	var resp Session
	if err := c.do("GET", c.sessionPath(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats is the session overview.
type Stats struct {
	Key           string `json:"key"`
	TotalNodes    int    `json:"total_nodes"`
	TotalEdges    int    `json:"total_edges"`
	TotalMessages int    `json:"total_messages"`
	LiveNodes     int    `json:"live_nodes"`
	LastActivity  string `json:"last_activity,omitempty"`
}

// Stats returns counts and last activity for the session.
func (c *Client) Stats() (*Stats, error) {
	var resp Stats
	if err := c.do("GET", c.sessionPath("stats"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Nodes lists the session's nodes.
func (c *Client) Nodes() ([]Node, error) {
	var resp []Node
	if err := c.do("GET", c.sessionPath("nodes"), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AddNode creates a node. The server generates an id when node.ID is empty.
func (c *Client) AddNode(node Node) (*Node, error) {
	var resp Node
	if err := c.do("POST", c.sessionPath("nodes"), node, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveNode deletes a node and its edges.
func (c *Client) RemoveNode(nodeID string) error {
	return c.do("DELETE", c.sessionPath("nodes", nodeID), nil, nil)
}

// Move sets a node's canvas position.
func (c *Client) Move(nodeID string, x, y float64) error {
	return c.do("PUT", c.sessionPath("nodes", nodeID, "position"), Position{X: x, Y: y}, nil)
}

// Connect adds an edge from source to target.
func (c *Client) Connect(source, target string) (*Edge, error) {
	var resp Edge
	if err := c.do("POST", c.sessionPath("edges"), Edge{Source: source, Target: target}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Disconnect removes an edge.
func (c *Client) Disconnect(edgeID string) error {
	return c.do("DELETE", c.sessionPath("edges", edgeID), nil, nil)
}

// Upstream lists the ids feeding nodeID, sources first.
func (c *Client) Upstream(nodeID string, includeSelf bool) ([]string, error) {
	var resp struct {
		Nodes []string `json:"nodes"`
	}
	path := c.sessionPath("nodes", nodeID, "upstream") + "?includeSelf=" + strconv.FormatBool(includeSelf)
	if err := c.do("GET", path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// ChatData returns a node's history.
func (c *Client) ChatData(nodeID string) ([]Message, error) {
	var resp []Message
	if err := c.do("GET", c.sessionPath("nodes", nodeID, "chat"), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AppendMessage adds one message to a node's history.
func (c *Client) AppendMessage(nodeID, sender, text string) (*Message, error) {
	req := struct {
		Sender  string `json:"sender"`
		Message string `json:"message"`
	}{sender, text}

	var resp Message
	if err := c.do("POST", c.sessionPath("nodes", nodeID, "chat"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Turn is one entry of an assembled context.
type Turn struct {
	Role  string `json:"role"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

// Text joins the turn's parts.
func (t Turn) Text() string {
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}

// Context is the model-ready context of a node.
type Context struct {
	SystemInstructions string `json:"systemInstructions"`
	Turns              []Turn `json:"turns"`
}

// BuildContext assembles a node's context. Empty mode uses the server's
// default; empty systemInstructions use the node's own.
func (c *Client) BuildContext(nodeID, systemInstructions, mode string) (*Context, error) {
	req := struct {
		SystemInstructions string `json:"systemInstructions,omitempty"`
		Mode               string `json:"mode,omitempty"`
	}{systemInstructions, mode}

	var resp Context
	if err := c.do("POST", c.sessionPath("nodes", nodeID, "context"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send asks the model about nodeID's context. With record set the exchange
// is appended to the node's history.
func (c *Client) Send(nodeID, text string, record bool) (string, error) {
	req := struct {
		Text   string `json:"text"`
		Record bool   `json:"record"`
	}{text, record}

	var resp struct {
		Result string `json:"result"`
	}
	if err := c.do("POST", c.sessionPath("nodes", nodeID, "send"), req, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// Save persists the session now.
func (c *Client) Save() error {
	return c.do("POST", c.sessionPath("save"), nil, nil)
}

// LoadResponse reports what a reload found.
type LoadResponse struct {
	Found bool `json:"found"`
	Nodes int  `json:"nodes"`
	Edges int  `json:"edges"`
}

// Load discards the server's in-memory state and re-reads the stored session.
func (c *Client) Load() (*LoadResponse, error) {
	var resp LoadResponse
	if err := c.do("POST", c.sessionPath("load"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetCredential stores key as this client's model key on the server.
func (c *Client) SetCredential(key string) error {
	req := struct {
		Client string `json:"client"`
		Key    string `json:"key"`
	}{c.ClientID, key}
	return c.do("PUT", "/credentials", req, nil)
}
