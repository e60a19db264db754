package aria2_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/engine/aria2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func newRPCServer(t *testing.T, handler func(call rpcCall) (any, *engine.RPCError)) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))

		result, rpcErr := handler(call)

		w.Header().Set("Content-Type", "application/json")

		if rpcErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"id": "1", "error": rpcErr})

			return
		}

		json.NewEncoder(w).Encode(map[string]any{"id": "1", "result": result})
	}))
}

func TestAddURI_SendsTokenAndURI(t *testing.T) {
	ts := newRPCServer(t, func(call rpcCall) (any, *engine.RPCError) {
		assert.Equal(t, "aria2.addUri", call.Method)
		require.Len(t, call.Params, 2)

		// The shared secret always rides as the first parameter.
		assert.Equal(t, "token:s3cret", call.Params[0])

		uris, ok := call.Params[1].([]any)
		require.True(t, ok)
		assert.Equal(t, "magnet:?xt=urn:btih:deadbeef", uris[0])

		return "gid1", nil
	})
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	gid, err := c.AddURI(context.Background(), "magnet:?xt=urn:btih:deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "gid1", gid)
}

func TestAddURI_NoSecretMeansNoToken(t *testing.T) {
	ts := newRPCServer(t, func(call rpcCall) (any, *engine.RPCError) {
		require.Len(t, call.Params, 1)

		return "gid1", nil
	})
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "", time.Second)

	_, err := c.AddURI(context.Background(), "magnet:?xt=x")
	require.NoError(t, err)
}

func TestAddTorrent_Base64Payload(t *testing.T) {
	raw := []byte("d4:infod4:name1:xee")

	ts := newRPCServer(t, func(call rpcCall) (any, *engine.RPCError) {
		assert.Equal(t, "aria2.addTorrent", call.Method)
		require.Len(t, call.Params, 2)
		assert.Equal(t, base64.StdEncoding.EncodeToString(raw), call.Params[1])

		return "gid2", nil
	})
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	gid, err := c.AddTorrent(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "gid2", gid)
}

func TestTellStopped_NormalizesStringNumbers(t *testing.T) {
	ts := newRPCServer(t, func(call rpcCall) (any, *engine.RPCError) {
		assert.Equal(t, "aria2.tellStopped", call.Method)

		return []map[string]any{{
			"gid":             "gid3",
			"status":          "complete",
			"totalLength":     "1048576",
			"completedLength": "1048576",
			"downloadSpeed":   "0",
			"errorCode":       "0",
			"files": []map[string]any{
				{"path": "/staging/movie.mkv", "length": "1048576", "completedLength": "1048576"},
			},
		}}, nil
	})
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	stopped, err := c.TellStopped(context.Background())
	require.NoError(t, err)
	require.Len(t, stopped, 1)

	st := stopped[0]
	assert.Equal(t, "gid3", st.GID)
	assert.Equal(t, engine.StatusComplete, st.Status)
	assert.Equal(t, int64(1048576), st.TotalLength)
	assert.Equal(t, int64(1048576), st.CompletedLength)
	require.Len(t, st.Files, 1)
	assert.Equal(t, int64(1048576), st.Files[0].Length)
	assert.Equal(t, "movie.mkv", st.Name)
}

func TestTellActive_BitTorrentMetadata(t *testing.T) {
	ts := newRPCServer(t, func(call rpcCall) (any, *engine.RPCError) {
		return []map[string]any{{
			"gid":         "gid4",
			"status":      "active",
			"totalLength": "100",
			"infoHash":    "deadbeef",
			"numSeeders":  "12",
			"connections": "4",
			"bittorrent":  map[string]any{"info": map[string]any{"name": "ubuntu.iso"}},
			"followedBy":  []string{"gid5"},
		}}, nil
	})
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	active, err := c.TellActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)

	st := active[0]
	assert.Equal(t, "deadbeef", st.InfoHash)
	assert.Equal(t, int64(12), st.NumSeeders)
	assert.Equal(t, int64(4), st.Connections)
	assert.Equal(t, "ubuntu.iso", st.BTName())
	assert.Equal(t, []string{"gid5"}, st.FollowedBy)
}

func TestCall_RPCFault(t *testing.T) {
	ts := newRPCServer(t, func(rpcCall) (any, *engine.RPCError) {
		return nil, &engine.RPCError{Code: 1, Message: "GID abc is not found"}
	})
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	err := c.Pause(context.Background(), "abc")
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))

	var rpcErr *engine.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 1, rpcErr.Code)
}

func TestCall_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close() // refuse connections

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	_, err := c.Version(context.Background())
	require.Error(t, err)

	var unreachable *engine.UnreachableError
	assert.ErrorAs(t, err, &unreachable)
}

func TestCall_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	_, err := c.Version(context.Background())
	require.Error(t, err)

	var unreachable *engine.UnreachableError
	assert.ErrorAs(t, err, &unreachable)
}

func TestVersion(t *testing.T) {
	ts := newRPCServer(t, func(call rpcCall) (any, *engine.RPCError) {
		assert.Equal(t, "aria2.getVersion", call.Method)

		return map[string]string{"version": "1.37.0"}, nil
	})
	defer ts.Close()

	c := aria2.NewClient(ts.URL, "s3cret", time.Second)

	version, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.37.0", version)
}
