package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gologme/log"
	"github.com/stretchr/testify/require"

	"github.com/yggdrasil-network/rnsmesh/src/admin"
)

func TestBuildRequest(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	req, err := buildRequest([]string{"requestPath", "destination=abcd", "junk", "filter=a=b"}, logger)
	require.NoError(t, err)
	require.Equal(t, "requestPath", req.Name)

	var args map[string]string
	require.NoError(t, json.Unmarshal(req.Arguments, &args))
	require.Equal(t, map[string]string{"destination": "abcd", "filter": "a=b"}, args)
}

func TestRender(t *testing.T) {
	paths, err := json.Marshal(admin.GetPathsResponse{Paths: []admin.PathEntry{{
		Destination: "00112233445566778899aabbccddeeff",
		NextHop:     "ffeeddccbbaa99887766554433221100",
		Hops:        2,
		Interface:   "tcp-client",
	}}})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, render(&out, "getPaths", paths, false))
	require.Contains(t, out.String(), "00112233445566778899aabbccddeeff")
	require.Contains(t, out.String(), "tcp-client")

	out.Reset()
	require.NoError(t, render(&out, "dropPath", json.RawMessage(`{"dropped":true}`), false))
	require.Contains(t, out.String(), "dropped:")

	out.Reset()
	require.NoError(t, render(&out, "announces", json.RawMessage(`{"infos":[]}`), false))
	require.Equal(t, "{\"infos\":[]}\n", out.String())

	require.Error(t, render(&out, "getSelf", json.RawMessage(`[]`), false))
}

func TestAdminListenFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rnsd.conf")
	require.NoError(t, os.WriteFile(path, []byte("{\n  AdminListen: \"tcp://127.0.0.1:9002\"\n}"), 0o600))
	ep, err := adminListenFromConfig(path)
	require.NoError(t, err)
	require.Equal(t, "tcp://127.0.0.1:9002", ep)

	env := CmdLineEnv{endpoint: "tcp://localhost:9001", server: "tcp://localhost:9001", config: path}
	env.setEndpoint(log.New(io.Discard, "", 0))
	require.Equal(t, "tcp://127.0.0.1:9002", env.endpoint)

	env = CmdLineEnv{endpoint: "tcp://localhost:9001", server: "tcp://localhost:9001", config: filepath.Join(dir, "missing")}
	env.setEndpoint(log.New(io.Discard, "", 0))
	require.Equal(t, "tcp://localhost:9001", env.endpoint)
}
