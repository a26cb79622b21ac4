// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package feed mirrors the host application's content tree and exposes
// it to the engine as anchors and change events. The Document is the
// local replica; the websocket Client keeps it synchronized with a
// live host session and carries visibility commands back.
package feed

import (
	"sync"

	"github.com/AleutianAI/threadlens/services/thread"
)

// HiddenFunc receives visibility changes so a transport can forward
// them to the host. A nil func drops them (useful for tests and local
// replicas).
type HiddenFunc func(id string, hidden bool) error

type node struct {
	id       string
	text     string
	parent   string
	children []string
	detached bool
}

// Document is a thread-safe replica of the host's content tree. It
// implements thread.Feed; Anchor returns thread.Anchor handles bound
// to nodes. Handles outlive their nodes and report
// thread.ErrAnchorNotFound once the node has been removed.
type Document struct {
	mu          sync.Mutex
	nodes       map[string]*node
	roots       []string
	contentSubs map[string]map[int]func()
	childSubs   map[string]map[int]func(thread.ChildEvent)
	nextSub     int
	onHidden    HiddenFunc
}

// NewDocument creates an empty replica. onHidden may be nil.
func NewDocument(onHidden HiddenFunc) *Document {
	return &Document{
		nodes:       make(map[string]*node),
		contentSubs: make(map[string]map[int]func()),
		childSubs:   make(map[string]map[int]func(thread.ChildEvent)),
		onHidden:    onHidden,
	}
}

// Anchor returns a handle for id. The handle is valid even if the node
// does not exist yet; its operations fail until it does.
func (d *Document) Anchor(id string) thread.Anchor {
	return &anchorHandle{doc: d, id: id}
}

// RootIDs lists the top-level (thread main) node IDs in insertion
// order.
func (d *Document) RootIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.roots...)
}

// AddRoot inserts a top-level node. Replacing an existing ID is not
// supported; the call is ignored if id is already present.
func (d *Document) AddRoot(id, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.nodes[id]; ok {
		return
	}
	d.nodes[id] = &node{id: id, text: text}
	d.roots = append(d.roots, id)
}

// AddChild inserts a node under parent and notifies the parent's
// children subscribers. Unknown parents are ignored.
func (d *Document) AddChild(parent, id, text string) {
	d.mu.Lock()
	p, ok := d.nodes[parent]
	if !ok || d.nodes[id] != nil {
		d.mu.Unlock()
		return
	}
	d.nodes[id] = &node{id: id, text: text, parent: parent}
	p.children = append(p.children, id)
	subs := d.childSubsLocked(parent)
	anchor := d.Anchor(id)
	d.mu.Unlock()

	ev := thread.ChildEvent{Added: []thread.Anchor{anchor}}
	for _, fn := range subs {
		fn(ev)
	}
}

// SetText replaces a node's text and notifies its content subscribers.
func (d *Document) SetText(id, text string) {
	d.mu.Lock()
	n, ok := d.nodes[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	n.text = text
	subs := make([]func(), 0, len(d.contentSubs[id]))
	for _, fn := range d.contentSubs[id] {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Remove detaches a node and its whole subtree. Live anchor handles
// onto removed nodes start reporting thread.ErrAnchorNotFound; the
// parent's children subscribers see one removal event for the node
// itself (the subtree goes implicitly).
func (d *Document) Remove(id string) {
	d.mu.Lock()
	n, ok := d.nodes[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	parent := n.parent
	d.removeSubtreeLocked(id)
	if parent == "" {
		d.roots = deleteID(d.roots, id)
		d.mu.Unlock()
		return
	}
	if p, ok := d.nodes[parent]; ok {
		p.children = deleteID(p.children, id)
	}
	subs := d.childSubsLocked(parent)
	anchor := d.Anchor(id)
	d.mu.Unlock()

	ev := thread.ChildEvent{Removed: []thread.Anchor{anchor}}
	for _, fn := range subs {
		fn(ev)
	}
}

func (d *Document) removeSubtreeLocked(id string) {
	n, ok := d.nodes[id]
	if !ok {
		return
	}
	n.detached = true
	delete(d.nodes, id)
	delete(d.contentSubs, id)
	delete(d.childSubs, id)
	for _, child := range n.children {
		d.removeSubtreeLocked(child)
	}
}

func (d *Document) childSubsLocked(id string) []func(thread.ChildEvent) {
	subs := make([]func(thread.ChildEvent), 0, len(d.childSubs[id]))
	for _, fn := range d.childSubs[id] {
		subs = append(subs, fn)
	}
	return subs
}

// SubscribeContent implements thread.Feed.
func (d *Document) SubscribeContent(anchor thread.Anchor, fn func()) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := anchor.ID()
	if d.nodes[id] == nil {
		return nil, thread.ErrAnchorNotFound
	}
	if d.contentSubs[id] == nil {
		d.contentSubs[id] = make(map[int]func())
	}
	key := d.nextSub
	d.nextSub++
	d.contentSubs[id][key] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.contentSubs[id], key)
	}, nil
}

// SubscribeChildren implements thread.Feed.
func (d *Document) SubscribeChildren(anchor thread.Anchor, fn func(thread.ChildEvent)) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := anchor.ID()
	if d.nodes[id] == nil {
		return nil, thread.ErrAnchorNotFound
	}
	if d.childSubs[id] == nil {
		d.childSubs[id] = make(map[int]func(thread.ChildEvent))
	}
	key := d.nextSub
	d.nextSub++
	d.childSubs[id][key] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.childSubs[id], key)
	}, nil
}

// Children implements thread.Feed.
func (d *Document) Children(anchor thread.Anchor) ([]thread.Anchor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[anchor.ID()]
	if !ok {
		return nil, thread.ErrAnchorNotFound
	}
	out := make([]thread.Anchor, 0, len(n.children))
	for _, id := range n.children {
		out = append(out, &anchorHandle{doc: d, id: id})
	}
	return out, nil
}

func deleteID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// anchorHandle binds an Anchor to one node by ID.
type anchorHandle struct {
	doc *Document
	id  string
}

func (a *anchorHandle) ID() string { return a.id }

func (a *anchorHandle) Text() (string, error) {
	a.doc.mu.Lock()
	defer a.doc.mu.Unlock()
	n, ok := a.doc.nodes[a.id]
	if !ok {
		return "", thread.ErrAnchorNotFound
	}
	return n.text, nil
}

func (a *anchorHandle) SetHidden(hidden bool) error {
	a.doc.mu.Lock()
	_, ok := a.doc.nodes[a.id]
	onHidden := a.doc.onHidden
	a.doc.mu.Unlock()
	if !ok {
		return thread.ErrAnchorNotFound
	}
	if onHidden == nil {
		return nil
	}
	return onHidden(a.id, hidden)
}
