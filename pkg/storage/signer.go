// Package storage turns object references kept in the database (avatar keys
// and similar) into URLs clients can fetch.
package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

var ErrEmptyKey = errors.New("object key is empty")

// URLSigner returns a URL for the object stored under key. Signers backed by
// private buckets return a presigned URL valid for expires.
type URLSigner interface {
	SignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// StaticSigner joins keys onto a public base URL, e.g. a CDN or a static
// file server.
type StaticSigner struct {
	base *url.URL
}

func NewStaticSigner(baseURL string) (*StaticSigner, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	return &StaticSigner{base: u}, nil
}

func (s *StaticSigner) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	return s.base.JoinPath(strings.Split(key, "/")...).String(), nil
}
