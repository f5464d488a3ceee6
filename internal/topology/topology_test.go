package topology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLinkStatesInOrder(t *testing.T) {
	n, err := New(strings.NewReader("0 1 2 up\n30 1 2 down\n"))
	require.NoError(t, err)

	assert.True(t, n.Query(1, 2, 0))
	assert.True(t, n.Query(1, 2, 29))
	assert.False(t, n.Query(1, 2, 30))
}

func TestUnknownLinkIsDown(t *testing.T) {
	n, err := New(strings.NewReader(""))
	require.NoError(t, err)
	assert.False(t, n.Query(1, 2, 0))
}

func TestNewRejectsOutOfOrderTimes(t *testing.T) {
	_, err := New(strings.NewReader("10 1 2 up\n0 1 2 down\n"))
	assert.Error(t, err)
}

func TestNewRejectsMalformedLine(t *testing.T) {
	_, err := New(strings.NewReader("not a valid line\n"))
	assert.Error(t, err)
}

func TestNodesListsEveryEndpoint(t *testing.T) {
	n, err := New(strings.NewReader("0 1 2 up\n0 2 3 up\n"))
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3}, n.Nodes())
}
