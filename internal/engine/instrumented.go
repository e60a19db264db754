package engine

import (
	"context"

	"github.com/italolelis/cloudleecher/internal/telemetry"
)

// InstrumentedClient wraps a Client with telemetry for every engine RPC.
type InstrumentedClient struct {
	client    Client
	telemetry *telemetry.Telemetry
}

func NewInstrumentedClient(client Client, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

func (c *InstrumentedClient) AddURI(ctx context.Context, uri string) (string, error) {
	var gid string

	err := c.telemetry.InstrumentEngineOperation(ctx, "add_uri", func(ctx context.Context) error {
		var err error
		gid, err = c.client.AddURI(ctx, uri)

		return err
	})

	return gid, err
}

func (c *InstrumentedClient) AddTorrent(ctx context.Context, torrent []byte) (string, error) {
	var gid string

	err := c.telemetry.InstrumentEngineOperation(ctx, "add_torrent", func(ctx context.Context) error {
		var err error
		gid, err = c.client.AddTorrent(ctx, torrent)

		return err
	})

	return gid, err
}

func (c *InstrumentedClient) TellActive(ctx context.Context) ([]Status, error) {
	var statuses []Status

	err := c.telemetry.InstrumentEngineOperation(ctx, "tell_active", func(ctx context.Context) error {
		var err error
		statuses, err = c.client.TellActive(ctx)

		return err
	})

	return statuses, err
}

func (c *InstrumentedClient) TellWaiting(ctx context.Context) ([]Status, error) {
	var statuses []Status

	err := c.telemetry.InstrumentEngineOperation(ctx, "tell_waiting", func(ctx context.Context) error {
		var err error
		statuses, err = c.client.TellWaiting(ctx)

		return err
	})

	return statuses, err
}

func (c *InstrumentedClient) TellStopped(ctx context.Context) ([]Status, error) {
	var statuses []Status

	err := c.telemetry.InstrumentEngineOperation(ctx, "tell_stopped", func(ctx context.Context) error {
		var err error
		statuses, err = c.client.TellStopped(ctx)

		return err
	})

	return statuses, err
}

func (c *InstrumentedClient) TellStatus(ctx context.Context, gid string) (Status, error) {
	var status Status

	err := c.telemetry.InstrumentEngineOperation(ctx, "tell_status", func(ctx context.Context) error {
		var err error
		status, err = c.client.TellStatus(ctx, gid)

		return err
	})

	return status, err
}

func (c *InstrumentedClient) Pause(ctx context.Context, gid string) error {
	return c.telemetry.InstrumentEngineOperation(ctx, "pause", func(ctx context.Context) error {
		return c.client.Pause(ctx, gid)
	})
}

func (c *InstrumentedClient) Unpause(ctx context.Context, gid string) error {
	return c.telemetry.InstrumentEngineOperation(ctx, "unpause", func(ctx context.Context) error {
		return c.client.Unpause(ctx, gid)
	})
}

func (c *InstrumentedClient) ForceRemove(ctx context.Context, gid string) error {
	return c.telemetry.InstrumentEngineOperation(ctx, "force_remove", func(ctx context.Context) error {
		return c.client.ForceRemove(ctx, gid)
	})
}

func (c *InstrumentedClient) RemoveResult(ctx context.Context, gid string) error {
	return c.telemetry.InstrumentEngineOperation(ctx, "remove_result", func(ctx context.Context) error {
		return c.client.RemoveResult(ctx, gid)
	})
}

func (c *InstrumentedClient) PurgeResults(ctx context.Context) error {
	return c.telemetry.InstrumentEngineOperation(ctx, "purge_results", func(ctx context.Context) error {
		return c.client.PurgeResults(ctx)
	})
}

func (c *InstrumentedClient) Version(ctx context.Context) (string, error) {
	var version string

	err := c.telemetry.InstrumentEngineOperation(ctx, "version", func(ctx context.Context) error {
		var err error
		version, err = c.client.Version(ctx)

		return err
	})

	return version, err
}
