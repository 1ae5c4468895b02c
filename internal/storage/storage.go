// Package storage keeps outbound media and email attachments. Files live in
// S3 in production and on local disk in development and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jadidihosein68/osaconnect/internal/config"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Store reads and writes opaque blobs by key.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns a URL a provider can fetch the object from.
	URL(ctx context.Context, key string) (string, error)
}

// LocalStore keeps files under a root directory.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates the root directory if needed. baseURL is the public
// prefix files are served under; empty yields file:// URLs.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes body under key.
func (s *LocalStore) Put(_ context.Context, key string, body []byte, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(p, body, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// Get reads the object stored under key.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// URL returns the public URL of key.
func (s *LocalStore) URL(_ context.Context, key string) (string, error) {
	if s.baseURL == "" {
		p, err := s.path(key)
		if err != nil {
			return "", err
		}
		return "file://" + p, nil
	}
	return s.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

// New returns an S3 store when a bucket is configured, else a local store.
func New(ctx context.Context, cfg config.MediaConfig, awsCfg config.AWSConfig, publicBaseURL string) (Store, error) {
	if cfg.Bucket != "" {
		return NewS3StoreFromConfig(ctx, cfg, awsCfg)
	}
	base := ""
	if publicBaseURL != "" {
		base = strings.TrimRight(publicBaseURL, "/") + "/media"
	}
	return NewLocalStore(cfg.LocalPath, base)
}

// ResolveURL turns a media reference into a fetchable URL. Absolute
// http(s) references pass through; anything else is a storage key.
func ResolveURL(ctx context.Context, store Store, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if store == nil {
		return "", fmt.Errorf("media %q requires storage", ref)
	}
	return store.URL(ctx, strings.TrimPrefix(ref, "s3://"))
}
