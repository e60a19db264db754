package aria2

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/italolelis/cloudleecher/internal/engine"
	"github.com/italolelis/cloudleecher/internal/logctx"
)

// listWindow bounds how many waiting/stopped entries we page in per call.
// One operator, one queue slot; anything near this limit means the engine
// registry needs a purge anyway.
const listWindow = 100

// Field sets requested from the engine. The basic set is safe for every
// download state; the extended set adds bittorrent-only keys that the
// engine rejects for plain downloads in some states.
var (
	basicKeys = []string{
		"gid", "status", "totalLength", "completedLength", "downloadSpeed",
		"uploadSpeed", "dir", "files", "errorMessage", "errorCode",
		"followedBy", "following",
	}
	extendedKeys = append(basicKeys[:len(basicKeys):len(basicKeys)],
		"numSeeders", "connections", "infoHash", "bittorrent")
)

// Client talks to an aria2 daemon over its JSON-RPC HTTP endpoint.
type Client struct {
	rpcURL     string
	secret     string
	httpClient *http.Client
	seq        atomic.Uint64
}

func NewClient(rpcURL, secret string, timeout time.Duration) *Client {
	return &Client{
		rpcURL:     rpcURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ engine.Client = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage  `json:"result"`
	Error  *engine.RPCError `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	logger := logctx.LoggerFromContext(ctx).With("method", method)

	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}

	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.seq.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("engine rpc transport error", "err", err)

		return &engine.UnreachableError{Err: err}
	}
	defer resp.Body.Close()

	// aria2 answers faults with 4xx/5xx but still ships a JSON-RPC error
	// body, so decode before looking at the status code.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &engine.UnreachableError{Err: err}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return &engine.UnreachableError{Err: fmt.Errorf("bad rpc response (status %d): %w", resp.StatusCode, err)}
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

// AddURI queues a magnet link (or any URI the engine understands) and
// returns the first identifier the engine assigns to it.
func (c *Client) AddURI(ctx context.Context, uri string) (string, error) {
	var gid string
	if err := c.call(ctx, "aria2.addUri", []any{[]string{uri}}, &gid); err != nil {
		return "", fmt.Errorf("failed to add uri: %w", err)
	}

	return gid, nil
}

// AddTorrent queues a raw .torrent payload.
func (c *Client) AddTorrent(ctx context.Context, torrent []byte) (string, error) {
	var gid string

	encoded := base64.StdEncoding.EncodeToString(torrent)
	if err := c.call(ctx, "aria2.addTorrent", []any{encoded}, &gid); err != nil {
		return "", fmt.Errorf("failed to add torrent: %w", err)
	}

	return gid, nil
}

func (c *Client) TellActive(ctx context.Context) ([]engine.Status, error) {
	var wire []wireStatus
	if err := c.call(ctx, "aria2.tellActive", []any{extendedKeys}, &wire); err != nil {
		return nil, fmt.Errorf("failed to list active downloads: %w", err)
	}

	return convertAll(wire), nil
}

func (c *Client) TellWaiting(ctx context.Context) ([]engine.Status, error) {
	var wire []wireStatus
	if err := c.call(ctx, "aria2.tellWaiting", []any{0, listWindow, basicKeys}, &wire); err != nil {
		return nil, fmt.Errorf("failed to list waiting downloads: %w", err)
	}

	return convertAll(wire), nil
}

func (c *Client) TellStopped(ctx context.Context) ([]engine.Status, error) {
	var wire []wireStatus
	if err := c.call(ctx, "aria2.tellStopped", []any{0, listWindow, basicKeys}, &wire); err != nil {
		return nil, fmt.Errorf("failed to list stopped downloads: %w", err)
	}

	return convertAll(wire), nil
}

func (c *Client) TellStatus(ctx context.Context, gid string) (engine.Status, error) {
	var wire wireStatus
	if err := c.call(ctx, "aria2.tellStatus", []any{gid, extendedKeys}, &wire); err != nil {
		return engine.Status{}, fmt.Errorf("failed to query download %s: %w", gid, err)
	}

	return wire.toStatus(), nil
}

func (c *Client) Pause(ctx context.Context, gid string) error {
	if err := c.call(ctx, "aria2.pause", []any{gid}, nil); err != nil {
		return fmt.Errorf("failed to pause download %s: %w", gid, err)
	}

	return nil
}

func (c *Client) Unpause(ctx context.Context, gid string) error {
	if err := c.call(ctx, "aria2.unpause", []any{gid}, nil); err != nil {
		return fmt.Errorf("failed to resume download %s: %w", gid, err)
	}

	return nil
}

func (c *Client) ForceRemove(ctx context.Context, gid string) error {
	if err := c.call(ctx, "aria2.forceRemove", []any{gid}, nil); err != nil {
		return fmt.Errorf("failed to remove download %s: %w", gid, err)
	}

	return nil
}

// RemoveResult drops a stopped download from the engine's result registry,
// freeing its slot once relocation reached a terminal state.
func (c *Client) RemoveResult(ctx context.Context, gid string) error {
	if err := c.call(ctx, "aria2.removeDownloadResult", []any{gid}, nil); err != nil {
		return fmt.Errorf("failed to remove download result %s: %w", gid, err)
	}

	return nil
}

func (c *Client) PurgeResults(ctx context.Context) error {
	if err := c.call(ctx, "aria2.purgeDownloadResult", nil, nil); err != nil {
		return fmt.Errorf("failed to purge download results: %w", err)
	}

	return nil
}

// Version doubles as the liveness and shared-secret probe: it fails with an
// rpc fault on a bad secret and with UnreachableError when the daemon is down.
func (c *Client) Version(ctx context.Context) (string, error) {
	var res struct {
		Version string `json:"version"`
	}

	if err := c.call(ctx, "aria2.getVersion", nil, &res); err != nil {
		return "", fmt.Errorf("failed to get engine version: %w", err)
	}

	return res.Version, nil
}

// wireStatus mirrors the engine's JSON shape, where every numeric field is
// a decimal string. Normalized to int64 at this boundary so nothing above
// the adapter deals with stringly numbers.
type wireStatus struct {
	GID             string             `json:"gid"`
	Status          string             `json:"status"`
	TotalLength     string             `json:"totalLength"`
	CompletedLength string             `json:"completedLength"`
	DownloadSpeed   string             `json:"downloadSpeed"`
	UploadSpeed     string             `json:"uploadSpeed"`
	Dir             string             `json:"dir"`
	InfoHash        string             `json:"infoHash"`
	NumSeeders      string             `json:"numSeeders"`
	Connections     string             `json:"connections"`
	ErrorCode       string             `json:"errorCode"`
	ErrorMessage    string             `json:"errorMessage"`
	FollowedBy      []string           `json:"followedBy"`
	Following       string             `json:"following"`
	BitTorrent      *engine.BitTorrent `json:"bittorrent"`
	Files           []wireFile         `json:"files"`
}

type wireFile struct {
	Path            string `json:"path"`
	Length          string `json:"length"`
	CompletedLength string `json:"completedLength"`
}

func (w wireStatus) toStatus() engine.Status {
	st := engine.Status{
		GID:             w.GID,
		Status:          w.Status,
		TotalLength:     parseInt(w.TotalLength),
		CompletedLength: parseInt(w.CompletedLength),
		DownloadSpeed:   parseInt(w.DownloadSpeed),
		UploadSpeed:     parseInt(w.UploadSpeed),
		Dir:             w.Dir,
		InfoHash:        w.InfoHash,
		NumSeeders:      parseInt(w.NumSeeders),
		Connections:     parseInt(w.Connections),
		ErrorCode:       w.ErrorCode,
		ErrorMessage:    w.ErrorMessage,
		FollowedBy:      w.FollowedBy,
		Following:       w.Following,
		BitTorrent:      w.BitTorrent,
		Files:           make([]engine.File, 0, len(w.Files)),
	}

	for _, f := range w.Files {
		st.Files = append(st.Files, engine.File{
			Path:            f.Path,
			Length:          parseInt(f.Length),
			CompletedLength: parseInt(f.CompletedLength),
		})
	}

	st.Name = st.DisplayName()

	return st
}

func convertAll(wire []wireStatus) []engine.Status {
	statuses := make([]engine.Status, 0, len(wire))
	for _, w := range wire {
		statuses = append(statuses, w.toStatus())
	}

	return statuses
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return n
}
