// Package client implements the room connection used by the drawing
// surface: dial, join, a background receive loop, and automatic
// reconnect-and-rejoin with the last known room code.
package client

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/easeldraw/easel/backend/internal/schema"
)

const (
	initialRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
	writeWait         = 10 * time.Second
)

// Client is one end of a room's sync socket. OnBatch is invoked for every
// inbound batch on a single consumer goroutine, the stand-in for the UI
// thread: all local entity mutations must happen there, while decoding
// stays on the receive loop.
type Client struct {
	URL      string
	RoomCode string
	Logger   zerolog.Logger
	OnBatch  func(*schema.Batch)

	conn    *websocket.Conn
	outbox  chan []byte
	updates chan *schema.Batch
}

func New(url, roomCode string, logger zerolog.Logger, onBatch func(*schema.Batch)) *Client {
	return &Client{
		URL:      url,
		RoomCode: roomCode,
		Logger:   logger,
		OnBatch:  onBatch,
		outbox:   make(chan []byte, 64),
		updates:  make(chan *schema.Batch, 64),
	}
}

// Run connects and keeps the session alive until the context is
// cancelled. A dropped connection triggers reconnect with a doubling
// delay, rejoining the last known room code.
func (c *Client) Run(ctx context.Context) error {
	go c.consume(ctx)

	delay := initialRetryDelay
	for {
		if err := c.session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("connection lost, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			continue
		}
		return nil
	}
}

// session runs one connect-join-receive cycle.
func (c *Client) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	defer conn.Close()

	join := &schema.Batch{Operation: schema.OpJoin, RoomCode: c.RoomCode}
	data, err := join.Encode()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	writeDone := make(chan struct{})
	go c.writeLoop(ctx, conn, writeDone)
	defer close(writeDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		batch, err := schema.Decode(message)
		if err != nil {
			c.Logger.Warn().Err(err).Msg("dropping undecodable batch")
			continue
		}

		select {
		case c.updates <- batch:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case data := <-c.outbox:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// consume is the single consumer goroutine all inbound batches funnel
// through.
func (c *Client) consume(ctx context.Context) {
	for {
		select {
		case batch := <-c.updates:
			c.OnBatch(batch)
		case <-ctx.Done():
			return
		}
	}
}

// Send queues an outbound batch. Drops the batch if the outbox is full
// rather than blocking an edit gesture.
func (c *Client) Send(batch *schema.Batch) error {
	data, err := batch.Encode()
	if err != nil {
		return err
	}
	select {
	case c.outbox <- data:
	default:
		c.Logger.Warn().Msg("outbox full, dropping batch")
	}
	return nil
}

// Undo asks the server to revert the room's most recent edit.
func (c *Client) Undo() error {
	return c.Send(&schema.Batch{Operation: schema.OpUndo})
}

// Redo asks the server to replay the room's most recent undo.
func (c *Client) Redo() error {
	return c.Send(&schema.Batch{Operation: schema.OpRedo})
}
