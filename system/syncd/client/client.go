// Package client speaks the syncd session protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"go.lsp.dev/jsonrpc2"

	"github.com/signadot/docsync/system/syncd/api"
)

// Event is a server notification: exactly one of Patch and Closed is set.
type Event struct {
	Patch  *api.PatchEvent
	Closed *api.ClosedEvent
}

// Client is a connection to a syncd server.
type Client struct {
	conn jsonrpc2.Conn

	// Events receives server notifications in arrival order. It is closed
	// when the connection ends.
	Events <-chan Event
	events chan Event
}

// Dial connects to a syncd server at addr. buffer sizes the Events
// channel; notifications are dropped while it is full, so consumers must
// keep up or resynchronize on gaps.
func Dial(ctx context.Context, addr string, buffer int) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(ctx, c, buffer), nil
}

// New runs the protocol over an established connection.
func New(ctx context.Context, c net.Conn, buffer int) *Client {
	events := make(chan Event, buffer)
	cl := &Client{
		conn:   jsonrpc2.NewConn(jsonrpc2.NewStream(c)),
		Events: events,
		events: events,
	}
	cl.conn.Go(ctx, cl.handle)
	go func() {
		<-cl.conn.Done()
		close(events)
	}()
	return cl
}

// handle runs on the connection's reader; it must not call the server.
func (c *Client) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var ev Event
	switch req.Method() {
	case api.NotifyPatch:
		ev.Patch = &api.PatchEvent{}
		if err := json.Unmarshal(req.Params(), ev.Patch); err != nil {
			return reply(ctx, nil, err)
		}
	case api.NotifyClosed:
		ev.Closed = &api.ClosedEvent{}
		if err := json.Unmarshal(req.Params(), ev.Closed); err != nil {
			return reply(ctx, nil, err)
		}
	default:
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.MethodNotFound, "unknown method "+req.Method()))
	}
	select {
	case c.events <- ev:
	default:
	}
	return reply(ctx, nil, nil)
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	_, err := c.conn.Call(ctx, method, params, result)
	return fromRPCError(err)
}

// fromRPCError recovers the engine error carried in a JSON-RPC error's
// data so callers can match it with errors.Is.
func fromRPCError(err error) error {
	var re *jsonrpc2.Error
	if !errors.As(err, &re) || re.Data == nil {
		return err
	}
	e := &api.Error{}
	if json.Unmarshal(*re.Data, e) != nil || e.Code == "" {
		return err
	}
	return e
}

// Subscribe subscribes to key from anchor and returns the subscription id.
func (c *Client) Subscribe(ctx context.Context, key api.StreamKey, anchor api.SnapshotID) (string, error) {
	var res api.SubscribeResult
	if err := c.call(ctx, api.MethodSubscribe, &api.SubscribeParams{StreamKey: key, Anchor: anchor}, &res); err != nil {
		return "", err
	}
	return res.Subscription, nil
}

func (c *Client) Unsubscribe(ctx context.Context, key api.StreamKey, id string) error {
	return c.call(ctx, api.MethodUnsubscribe, &api.UnsubscribeParams{StreamKey: key, Subscription: id}, nil)
}

func (c *Client) Snapshot(ctx context.Context, key api.StreamKey) (*api.Snapshot, error) {
	res := &api.Snapshot{}
	if err := c.call(ctx, api.MethodSnapshot, &api.SnapshotParams{StreamKey: key}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Changes(ctx context.Context, key api.StreamKey, from api.SnapshotID) (*api.Patch, error) {
	res := &api.Patch{}
	if err := c.call(ctx, api.MethodChanges, &api.ChangesParams{StreamKey: key, From: from}, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) Streams(ctx context.Context) ([]api.StreamKey, error) {
	var res api.StreamsResult
	if err := c.call(ctx, api.MethodStreams, struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Streams, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}
