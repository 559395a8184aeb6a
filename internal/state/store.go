package state

import "context"

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetBlob(ctx context.Context, key string) ([]byte, bool, error)
	SetBlob(ctx context.Context, key string, value []byte) error
	Close() error
}
