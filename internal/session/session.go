// Package session keeps the signed-in user's token between pharmactl runs.
package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"

	"pharmacy/admin/internal/domain"
)

type Session struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Store persists at most one session. Get returns nil, nil when nobody is signed in.
type Store interface {
	Get(ctx context.Context) (*Session, error)
	Set(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	current *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, nil
	}
	s := *m.current
	return &s, nil
}

func (m *MemoryStore) Set(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &s
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath is the session file under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "locate config dir")
	}
	return filepath.Join(dir, "pharmactl", "session.json"), nil
}

func (f *FileStore) Get(_ context.Context) (*Session, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session file")
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode session file")
	}
	if s.Token == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStore) Set(_ context.Context, s Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "create session dir")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write session file")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "replace session file")
}

func (f *FileStore) Clear(_ context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove session file")
	}
	return nil
}

const defaultRedisKey = "pharmactl:session"

// RedisStore shares one session between machines pointed at the same redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, key: defaultRedisKey}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Get(ctx context.Context) (*Session, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return &s, nil
}

func (r *RedisStore) Set(ctx context.Context, s Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, payload, 0).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
