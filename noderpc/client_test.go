package noderpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := splitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client, err := NewClient(Config{
		Host:       host,
		Port:       port,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func splitHostPort(hostport string) (string, string, error) {
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			return hostport[:i], hostport[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("no port in %q", hostport)
}

func TestGetChainTip_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getblockcount", req.Method)
		json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage("123456")})
	})

	height, err := client.GetChainTip(context.Background())
	require.NoError(t, err)
	require.Equal(t, 123456, height)
}

func TestCall_RetriesTransportErrorThenSucceeds(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage("1")})
	})

	height, err := client.GetChainTip(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, height)
	require.Equal(t, 2, attempts)
}

func TestCall_AuthFailureNoRetryAfterReload(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := splitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cookiePath := t.TempDir() + "/.cookie"
	require.NoError(t, writeFile(cookiePath, "user:pass"))

	client, err := NewClient(Config{
		Host: host, Port: port, CookiePath: cookiePath,
		Timeout: 2 * time.Second, MaxRetries: 1, RetryDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.GetChainTip(context.Background())
	require.Error(t, err)
	var authErr *AuthFailure
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 1, attempts, "auth failure is not retried; the cookie is only reloaded for later calls")
}

func TestGetBlockAt_ResolvesHashThenFetchesBlock(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "getblockhash":
			json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(`"00000000deadbeef"`)})
		case "getblock":
			block := wireBlock{Hash: "00000000deadbeef", Height: 42, Time: 1700000000}
			raw, _ := json.Marshal(block)
			json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: raw})
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
	})

	block, err := client.GetBlockAt(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "00000000deadbeef", block.Hash)
	require.Equal(t, 42, block.Height)
}

func TestGetBlockchainInfo_DecodesVersionSeparatelyFromHeaderCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getblockchaininfo", req.Method)
		json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(
			`{"chain":"main","blocks":800000,"headers":800000,"version":260000}`,
		)})
	})

	info, err := client.GetBlockchainInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "main", info.Chain)
	require.Equal(t, 800000, info.Blocks)
	require.Equal(t, 260000, info.Version, "Version must come from the RPC's version field, not headers")
}

func TestGetTxsBatch_ChunksAndAlignsResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqs))
		resps := make([]rpcResponse, 0, len(reqs))
		for _, req := range reqs {
			tx := wireTx{TxID: req.Params[0].(string)}
			raw, _ := json.Marshal(tx)
			resps = append(resps, rpcResponse{ID: req.ID, Result: raw})
		}
		json.NewEncoder(w).Encode(resps)
	})

	txs, err := client.GetTxsBatch(context.Background(), []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Equal(t, "a", txs[0].TxID)
	require.Equal(t, "b", txs[1].TxID)
	require.Equal(t, "c", txs[2].TxID)
}
