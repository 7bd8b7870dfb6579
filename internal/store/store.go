package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shehryarbajwa/rentharvest/pkg/models"
)

// SessionKey is the fixed name the session record is persisted under
const SessionKey = "rentharvest:session"

// ErrNotFound is returned by Load when nothing has been persisted yet
var ErrNotFound = errors.New("session record not found")

// Store persists the single session record across process restarts
type Store interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Close() error
}

// Options selects and configures a Store implementation
type Options struct {
	Kind          string // memory, file or redis
	FilePath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the store described by opts
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(opts.FilePath)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store kind %q", opts.Kind)
	}
}
