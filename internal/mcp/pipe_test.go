package mcp_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/petasbytes/mcp-agent/internal/mcp"
)

func TestPipeTransport_Session(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := mcp.NewServer("inproc", "1", testHandler{}, nil)
	s := mcp.NewSession(mcp.NewPipeTransport(srv), nil)

	ctx := context.Background()
	caps, err := s.Handshake(ctx)
	require.NoError(t, err)
	assert.Equal(t, "inproc", caps.ServerInfo.Name)

	require.Eventually(t, srv.Initialized, time.Second, 5*time.Millisecond)

	res, err := s.CallTool(ctx, "echo", map[string]any{"text": "in memory"})
	require.NoError(t, err)
	assert.Equal(t, "in memory", res.Text())

	res, err = s.CallTool(ctx, "panic", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestPipeTransport_CloseWithRequestInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := mcp.NewServer("inproc", "1", testHandler{}, nil)
	tr := mcp.NewPipeTransport(srv)
	s := mcp.NewSession(tr, nil)
	_, err := s.Handshake(context.Background())
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err := s.CallTool(short, "sleep", map[string]any{"ms": 100})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	require.NoError(t, s.Close())

	_, err = tr.Send(context.Background(), mcp.NewRequest(99, "ping", nil))
	assert.True(t, mcp.IsFatal(err))
}
