package services

import "context"

// Name identifies a node service.
type Name string

// Service is a background component owned by an execution node.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Name() Name
	OnReady(ctx context.Context, cb func(context.Context) error)
	Ready(ctx context.Context) error
}
