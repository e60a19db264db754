// Package enginetest provides a configurable fake engine client for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/italolelis/cloudleecher/internal/engine"
)

// Fake implements engine.Client with per-method hooks. Unset hooks return
// zero values. Calls records every method invocation in order.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	AddURIFunc       func(ctx context.Context, uri string) (string, error)
	AddTorrentFunc   func(ctx context.Context, torrent []byte) (string, error)
	TellActiveFunc   func(ctx context.Context) ([]engine.Status, error)
	TellWaitingFunc  func(ctx context.Context) ([]engine.Status, error)
	TellStoppedFunc  func(ctx context.Context) ([]engine.Status, error)
	TellStatusFunc   func(ctx context.Context, gid string) (engine.Status, error)
	PauseFunc        func(ctx context.Context, gid string) error
	UnpauseFunc      func(ctx context.Context, gid string) error
	ForceRemoveFunc  func(ctx context.Context, gid string) error
	RemoveResultFunc func(ctx context.Context, gid string) error
	PurgeResultsFunc func(ctx context.Context) error
	VersionFunc      func(ctx context.Context) (string, error)
}

// Call is one recorded method invocation.
type Call struct {
	Method string
	GID    string
}

var _ engine.Client = (*Fake)(nil)

func (f *Fake) record(method, gid string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Method: method, GID: gid})
}

// Calls returns every invocation recorded so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Call, len(f.calls))
	copy(out, f.calls)

	return out
}

// CallCount counts invocations of one method.
func (f *Fake) CallCount(method string) int {
	n := 0

	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}

	return n
}

func (f *Fake) AddURI(ctx context.Context, uri string) (string, error) {
	f.record("AddURI", "")

	if f.AddURIFunc != nil {
		return f.AddURIFunc(ctx, uri)
	}

	return "", nil
}

func (f *Fake) AddTorrent(ctx context.Context, torrent []byte) (string, error) {
	f.record("AddTorrent", "")

	if f.AddTorrentFunc != nil {
		return f.AddTorrentFunc(ctx, torrent)
	}

	return "", nil
}

func (f *Fake) TellActive(ctx context.Context) ([]engine.Status, error) {
	f.record("TellActive", "")

	if f.TellActiveFunc != nil {
		return f.TellActiveFunc(ctx)
	}

	return nil, nil
}

func (f *Fake) TellWaiting(ctx context.Context) ([]engine.Status, error) {
	f.record("TellWaiting", "")

	if f.TellWaitingFunc != nil {
		return f.TellWaitingFunc(ctx)
	}

	return nil, nil
}

func (f *Fake) TellStopped(ctx context.Context) ([]engine.Status, error) {
	f.record("TellStopped", "")

	if f.TellStoppedFunc != nil {
		return f.TellStoppedFunc(ctx)
	}

	return nil, nil
}

func (f *Fake) TellStatus(ctx context.Context, gid string) (engine.Status, error) {
	f.record("TellStatus", gid)

	if f.TellStatusFunc != nil {
		return f.TellStatusFunc(ctx, gid)
	}

	return engine.Status{}, nil
}

func (f *Fake) Pause(ctx context.Context, gid string) error {
	f.record("Pause", gid)

	if f.PauseFunc != nil {
		return f.PauseFunc(ctx, gid)
	}

	return nil
}

func (f *Fake) Unpause(ctx context.Context, gid string) error {
	f.record("Unpause", gid)

	if f.UnpauseFunc != nil {
		return f.UnpauseFunc(ctx, gid)
	}

	return nil
}

func (f *Fake) ForceRemove(ctx context.Context, gid string) error {
	f.record("ForceRemove", gid)

	if f.ForceRemoveFunc != nil {
		return f.ForceRemoveFunc(ctx, gid)
	}

	return nil
}

func (f *Fake) RemoveResult(ctx context.Context, gid string) error {
	f.record("RemoveResult", gid)

	if f.RemoveResultFunc != nil {
		return f.RemoveResultFunc(ctx, gid)
	}

	return nil
}

func (f *Fake) PurgeResults(ctx context.Context) error {
	f.record("PurgeResults", "")

	if f.PurgeResultsFunc != nil {
		return f.PurgeResultsFunc(ctx)
	}

	return nil
}

func (f *Fake) Version(ctx context.Context) (string, error) {
	f.record("Version", "")

	if f.VersionFunc != nil {
		return f.VersionFunc(ctx)
	}

	return "1.37.0", nil
}
