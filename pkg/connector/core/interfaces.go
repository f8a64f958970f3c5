package core

import (
	"context"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Writer is the write capability every destination exposes. Decorators
// implement it too, each holding the next Writer in the chain.
type Writer interface {
	Write(ctx context.Context, cfg *SyncConfig, records []*Record, action Action) (*Message, error)
}

// WriterFunc adapts a function to the Writer interface
type WriterFunc func(ctx context.Context, cfg *SyncConfig, records []*Record, action Action) (*Message, error)

// Write calls f
func (f WriterFunc) Write(ctx context.Context, cfg *SyncConfig, records []*Record, action Action) (*Message, error) {
	return f(ctx, cfg, records, action)
}

// Clearer is implemented by destinations that support full refresh. The
// returned message is a control message whose status is succeeded or failed.
type Clearer interface {
	ClearAllRecords(ctx context.Context, cfg *SyncConfig) (*Message, error)
}

// ClearerFunc adapts a function to the Clearer interface
type ClearerFunc func(ctx context.Context, cfg *SyncConfig) (*Message, error)

// ClearAllRecords calls f
func (f ClearerFunc) ClearAllRecords(ctx context.Context, cfg *SyncConfig) (*Message, error) {
	return f(ctx, cfg)
}

// Destination is the interface that all destination connectors must implement
type Destination interface {
	Writer
	Clearer

	Name() string
	CheckConnection(ctx context.Context) *Message
	Close(ctx context.Context) error
}

// Source is the interface that all source connectors must implement.
// Read returns one page of records selected by cfg.Limit and cfg.Offset.
type Source interface {
	Name() string
	Read(ctx context.Context, cfg *SyncConfig) ([]*Record, error)
	CheckConnection(ctx context.Context) *Message
	Close(ctx context.Context) error
}
