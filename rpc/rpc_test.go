package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/vlt/chain"
)

func postCommand(t *testing.T, srv *Server, command string, params interface{}) commandResponse {
	t.Helper()
	paramsRaw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(commandRequest{Command: command, Params: paramsRaw})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out commandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGetHeightReturnsZeroAtGenesis(t *testing.T) {
	e := chain.New()
	srv := New(e, nil, nil)
	out := postCommand(t, srv, "get_height", map[string]interface{}{})
	require.True(t, out.OK)
	require.Equal(t, float64(0), out.Result)
}

func TestUnknownCommandReturnsError(t *testing.T) {
	e := chain.New()
	srv := New(e, nil, nil)
	out := postCommand(t, srv, "not_a_real_command", map[string]interface{}{})
	require.False(t, out.OK)
	require.NotEmpty(t, out.Error)
}

func TestGetBalanceDefaultsToNativeToken(t *testing.T) {
	e := chain.New()
	srv := New(e, nil, nil)
	out := postCommand(t, srv, "get_balance", map[string]interface{}{"address": chain.PremineAddress})
	require.True(t, out.OK)
	require.Equal(t, float64(chain.PremineAtomic), out.Result)
}
