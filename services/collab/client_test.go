package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tranchefi/crypto"
	"tranchefi/native/effects"
)

type capturedRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  InvokeParams `json:"params"`
}

func TestInvokeSendsContractCall(t *testing.T) {
	var got capturedRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL:            srv.URL,
		BearerToken:        " token ",
		SharedSecretHeader: "X-Shared",
		SharedSecretValue:  "s3cret",
		AllowInsecure:      true,
	})
	require.NoError(t, err)

	pool := crypto.NewAddress(crypto.ContractPrefix, bytes.Repeat([]byte{0x02}, 20))
	token := crypto.NewAddress(crypto.ContractPrefix, bytes.Repeat([]byte{0x03}, 20))
	var inv effects.Invoker = client
	require.NoError(t, effects.Pool{Invoker: inv, Address: pool}.Supply(context.Background(), token, nil))

	require.Equal(t, "2.0", got.JSONRPC)
	require.Equal(t, MethodInvoke, got.Method)
	require.Equal(t, pool.String(), got.Params.ContractID)
	require.Equal(t, effects.MethodSupply, got.Params.FunctionName)
	require.Equal(t, []any{token.String(), "0"}, got.Params.Args)
	require.Equal(t, "Bearer token", headers.Get("Authorization"))
	require.Equal(t, "s3cret", headers.Get("X-Shared"))
}

func TestInvokeSurfacesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"insufficient liquidity"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, AllowInsecure: true})
	require.NoError(t, err)
	err = client.Invoke(context.Background(), crypto.NewAddress(crypto.ContractPrefix, bytes.Repeat([]byte{0x01}, 20)), effects.MethodSwap)
	require.ErrorContains(t, err, "insufficient liquidity")
}

func TestInvokeHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, AllowInsecure: true})
	require.NoError(t, err)
	require.Error(t, client.Call(context.Background(), MethodInvoke, nil, nil))
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{AllowInsecure: true})
	require.Error(t, err)
}
