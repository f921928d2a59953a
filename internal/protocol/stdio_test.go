package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioServerRun(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	s := &StdioServer{
		handler: newTestHandler(),
		in:      strings.NewReader(input),
		out:     &out,
	}

	require.NoError(t, s.Run(context.Background()))

	// Blank lines are skipped and notifications are silent, so only
	// the two pings produce output.
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	for _, line := range lines {
		var env responseEnvelope
		require.NoError(t, json.Unmarshal([]byte(line), &env))
		assert.Nil(t, env.Error)
	}
}

func TestStdioServerHandlesFinalLineWithoutNewline(t *testing.T) {
	var out bytes.Buffer
	s := &StdioServer{
		handler: newTestHandler(),
		in:      strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}`),
		out:     &out,
	}

	require.NoError(t, s.Run(context.Background()))

	var env responseEnvelope
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &env))
	assert.Nil(t, env.Error)
	assert.Equal(t, float64(7), env.ID)
}

func TestStdioServerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &StdioServer{
		handler: newTestHandler(),
		in:      strings.NewReader(""),
		out:     &bytes.Buffer{},
	}

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
