package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffa5/toy-crdt/awset"
	"github.com/jeffa5/toy-crdt/explore"
	"github.com/jeffa5/toy-crdt/model"
)

func exploredGraph(t *testing.T) explore.Graph {
	t.Helper()
	init, err := model.Initial(awset.ContextFree, model.DefaultScenario(2, 1, 1, "k"), model.FIFO, false)
	require.NoError(t, err)
	graph, err := explore.BuildGraph(context.Background(), init, explore.Options{})
	require.NoError(t, err)
	return graph
}

func TestServerServesGraph(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", exploredGraph(t))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	base := fmt.Sprintf("http://%s", srv.Addr())

	resp, err := http.Get(base + "/api/graph")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var graph explore.Graph
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&graph))
	assert.NotEmpty(t, graph.Nodes)
	assert.NotEmpty(t, graph.Edges)

	resp, err = http.Get(base + "/api/graph.dot")
	require.NoError(t, err)
	dot, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(dot), "digraph"))

	resp, err = http.Get(base + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "state graph")

	resp, err = http.Get(base + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, srv.Close())
	assert.NoError(t, <-done)
}
