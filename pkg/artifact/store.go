package artifact

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// FileStore keeps the artifact in a single file, replaced atomically on save.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (*Artifact, error) {
	_, span := tracing.StartSpan(ctx, "artifact.FileStore.Load")
	defer span.End()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, errors.Wrapf(ErrCacheMiss, "read %s: %v", s.path, err)
	}

	a, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(ErrCacheMiss, "decode %s: %v", s.path, err)
	}
	return a, nil
}

func (s *FileStore) Save(ctx context.Context, a *Artifact) error {
	_, span := tracing.StartSpan(ctx, "artifact.FileStore.Save")
	defer span.End()

	data, err := Encode(a)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create artifact directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp artifact")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write artifact")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "failed to replace artifact")
}

// RedisStore keeps the artifact under one key so every replica shares it.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "fern:artifact"
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context) (*Artifact, error) {
	ctx, span := tracing.StartSpan(ctx, "artifact.RedisStore.Load")
	defer span.End()

	data, err := s.client.GetBytes(ctx, s.key)
	if err != nil {
		if redis.IsNil(err) {
			return nil, ErrCacheMiss
		}
		return nil, errors.Wrapf(ErrCacheMiss, "get %s: %v", s.key, err)
	}

	a, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(ErrCacheMiss, "decode %s: %v", s.key, err)
	}
	return a, nil
}

func (s *RedisStore) Save(ctx context.Context, a *Artifact) error {
	ctx, span := tracing.StartSpan(ctx, "artifact.RedisStore.Save")
	defer span.End()

	data, err := Encode(a)
	if err != nil {
		return err
	}
	return errors.Wrap(s.client.Set(ctx, s.key, data, s.ttl), "failed to store artifact")
}
