// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one host-to-engine message on the feed socket.
type Event struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Parent  string           `json:"parent,omitempty"`
	Text    string           `json:"text,omitempty"`
	Threads []ThreadSnapshot `json:"threads,omitempty"`
}

// ThreadSnapshot is one thread in a full-state snapshot event.
type ThreadSnapshot struct {
	ID      string          `json:"id"`
	Text    string          `json:"text"`
	Replies []ReplySnapshot `json:"replies,omitempty"`
}

// ReplySnapshot is one reply in a full-state snapshot event.
type ReplySnapshot struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Event types on the host feed.
const (
	EventSnapshot      = "snapshot"
	EventThreadAdded   = "thread_added"
	EventThreadRemoved = "thread_removed"
	EventContent       = "content"
	EventChildAdded    = "child_added"
	EventChildRemoved  = "child_removed"
)

// Command is one engine-to-host message.
type Command struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Hidden bool   `json:"hidden"`
}

// CommandSetHidden asks the host to apply a visibility verdict.
const CommandSetHidden = "set_hidden"

// ClientConfig wires a Client to its consumers.
type ClientConfig struct {
	// URL is the host feed endpoint, ws:// or wss://.
	URL string

	// OnThreadAdded is called with the main anchor ID after a new
	// thread has been mirrored into the document.
	OnThreadAdded func(id string)

	// OnThreadRemoved is called after a thread has been dropped from
	// the document.
	OnThreadRemoved func(id string)

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HandshakeTimeout bounds the dial. Defaults to 10 seconds.
	HandshakeTimeout time.Duration
}

// Client mirrors the host's content tree over a websocket into a
// Document and forwards visibility commands back. One Client serves
// one host session.
type Client struct {
	cfg ClientConfig
	doc *Document
	log *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// Dial connects to the host feed and returns a client whose Document
// starts empty. Call Run to start mirroring.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed %s: %w", cfg.URL, err)
	}

	c := &Client{cfg: cfg, log: cfg.Logger, conn: conn}
	c.doc = NewDocument(c.sendHidden)
	return c, nil
}

// Document returns the mirrored content tree.
func (c *Client) Document() *Document {
	return c.doc
}

// Run reads host events until the connection fails or ctx is
// cancelled. It always closes the connection before returning.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read feed event: %w", err)
		}
		c.apply(ev)
	}
}

func (c *Client) apply(ev Event) {
	switch ev.Type {
	case EventSnapshot:
		for _, id := range c.doc.RootIDs() {
			c.doc.Remove(id)
			if c.cfg.OnThreadRemoved != nil {
				c.cfg.OnThreadRemoved(id)
			}
		}
		for _, t := range ev.Threads {
			c.doc.AddRoot(t.ID, t.Text)
			for _, r := range t.Replies {
				c.doc.AddChild(t.ID, r.ID, r.Text)
			}
			if c.cfg.OnThreadAdded != nil {
				c.cfg.OnThreadAdded(t.ID)
			}
		}
	case EventThreadAdded:
		c.doc.AddRoot(ev.ID, ev.Text)
		if c.cfg.OnThreadAdded != nil {
			c.cfg.OnThreadAdded(ev.ID)
		}
	case EventThreadRemoved:
		c.doc.Remove(ev.ID)
		if c.cfg.OnThreadRemoved != nil {
			c.cfg.OnThreadRemoved(ev.ID)
		}
	case EventContent:
		c.doc.SetText(ev.ID, ev.Text)
	case EventChildAdded:
		c.doc.AddChild(ev.Parent, ev.ID, ev.Text)
	case EventChildRemoved:
		c.doc.Remove(ev.ID)
	default:
		c.log.Debug("unknown feed event", "type", ev.Type)
	}
}

func (c *Client) sendHidden(id string, hidden bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	cmd := Command{Type: CommandSetHidden, ID: id, Hidden: hidden}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s for %s: %w", CommandSetHidden, id, err)
	}
	return nil
}

// Close tears the connection down. Safe to call repeatedly.
func (c *Client) Close() error {
	return c.conn.Close()
}
