// Package connector defines the live-connector-to-core interface (spec
// §6), kept for symmetry with the backtest core. No concrete connector is
// implemented here: wiring a real exchange's WebSocket/REST API is out of
// this kernel's scope, but the shapes below are what such a connector
// would push through.
package connector

import "github.com/hftsim/backtest/simtypes"

// LiveEventKind tags the payload carried by a LiveEvent.
type LiveEventKind int

const (
	FeedEvent LiveEventKind = iota
	FeedBatchEvent
	OrderEvent
	PositionEvent
	ErrorEvent
)

// LiveEvent is one message a connector pushes into the channel a live
// bot.Bot implementation consumes.
type LiveEvent struct {
	Kind     LiveEventKind
	Symbol   string
	Event    simtypes.Event
	Events   []simtypes.Event
	Order    simtypes.Order
	Position float64
	ErrKind  string
	ErrValue error
}

// RequestKind tags the payload carried by a Request.
type RequestKind int

const (
	OrderRequest RequestKind = iota
)

// Request is a message the core's submit/cancel path produces for a
// connector to translate into an exchange call.
type Request struct {
	Kind   RequestKind
	Symbol string
	Order  simtypes.Order
}

// Connector is the interface a live market/order gateway implements: push
// LiveEvents onto Events, and accept Requests from the core via Send.
// No implementation ships in this kernel.
type Connector interface {
	Events() <-chan LiveEvent
	Send(req Request) error
	Close() error
}
