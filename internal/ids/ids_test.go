package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageIDOrdering(t *testing.T) {
	first := NewMessageID()
	second := NewMessageID()
	assert.Len(t, first, 26)
	assert.True(t, first <= second)
}

func TestNewEdgeID(t *testing.T) {
	id := NewEdgeID()
	assert.True(t, strings.HasPrefix(id, "e-"))
	assert.NotEqual(t, id, NewEdgeID())
}

func TestNewNodeIDVersion(t *testing.T) {
	assert.Equal(t, 7, int(NewUUIDv7().Version()))
	assert.Len(t, NewNodeID(), 36)
}
