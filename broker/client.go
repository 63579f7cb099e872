package broker

import (
	"context"
	"fmt"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client dials a broker for a single request/reply exchange. Unlike a
// publisher that keeps one long-lived connection and retries
// fire-and-forget sends, discovery calls are rare enough that a fresh
// connection per call keeps the client trivially simple and
// side-effect free to retry.
type Client struct {
	endpoint string
}

// NewClient targets a broker's WebSocket endpoint, e.g. "ws://host:port/discover".
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint}
}

func (c *Client) roundTrip(ctx context.Context, env Envelope) (Response, error) {
	conn, _, err := websocket.Dial(ctx, c.endpoint, nil)
	if err != nil {
		return Response{}, fmt.Errorf("broker: dial %s: %w", c.endpoint, err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, env); err != nil {
		return Response{}, fmt.Errorf("broker: write request: %w", err)
	}

	var reply Envelope
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		return Response{}, fmt.Errorf("broker: read response: %w", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return reply.Response, nil
}

// Register announces a channel's shared-memory name and schema hash.
func (c *Client) Register(ctx context.Context, channel, shmName, schemaHash, endpoint, secret string) (Response, error) {
	return c.roundTrip(ctx, Envelope{Type: TypeRegisterRequest, Request: Request{
		Channel: channel, ShmName: shmName, SchemaHash: schemaHash, Endpoint: endpoint, SecretHash: HashSecret(secret),
	}})
}

// Discover looks up a channel's registration.
func (c *Client) Discover(ctx context.Context, channel, secret string) (Response, error) {
	return c.roundTrip(ctx, Envelope{Type: TypeDiscoverRequest, Request: Request{
		Channel: channel, SecretHash: HashSecret(secret),
	}})
}

// Deregister removes a channel's registration.
func (c *Client) Deregister(ctx context.Context, channel, secret string) (Response, error) {
	return c.roundTrip(ctx, Envelope{Type: TypeDeregisterRequest, Request: Request{
		Channel: channel, SecretHash: HashSecret(secret),
	}})
}
