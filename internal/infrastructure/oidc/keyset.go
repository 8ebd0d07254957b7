package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const defaultKeySetTTL = time.Hour

var errKeyNotFound = errors.New("signing key not found")

// KeySet caches provider JWKS documents by URL. Concurrent misses for the
// same URL share one fetch.
type KeySet struct {
	http  *http.Client
	cache *gocache.Cache
	group singleflight.Group
}

func NewKeySet(timeout, ttl time.Duration) *KeySet {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if ttl <= 0 {
		ttl = defaultKeySetTTL
	}
	return &KeySet{
		http:  &http.Client{Timeout: timeout},
		cache: gocache.New(ttl, 10*time.Minute),
	}
}

// Key returns the verification key with kid published at jwksURL. An unknown
// kid triggers one refetch, which covers provider key rotation.
func (k *KeySet) Key(ctx context.Context, jwksURL, kid string) (interface{}, error) {
	set, err := k.get(ctx, jwksURL, false)
	if err != nil {
		return nil, err
	}
	if key, ok := lookup(set, kid); ok {
		return key, nil
	}

	set, err = k.get(ctx, jwksURL, true)
	if err != nil {
		return nil, err
	}
	if key, ok := lookup(set, kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", errKeyNotFound, kid)
}

func (k *KeySet) get(ctx context.Context, jwksURL string, refresh bool) (*jose.JSONWebKeySet, error) {
	if !refresh {
		if v, ok := k.cache.Get(jwksURL); ok {
			return v.(*jose.JSONWebKeySet), nil
		}
	}

	v, err, _ := k.group.Do(jwksURL, func() (interface{}, error) {
		set, err := k.fetch(ctx, jwksURL)
		if err != nil {
			return nil, err
		}
		k.cache.SetDefault(jwksURL, set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*jose.JSONWebKeySet), nil
}

func (k *KeySet) fetch(ctx context.Context, jwksURL string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read jwks: %w", err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return &set, nil
}

func lookup(set *jose.JSONWebKeySet, kid string) (interface{}, bool) {
	for _, key := range set.Key(kid) {
		if key.Use == "" || key.Use == "sig" {
			return key.Key, true
		}
	}
	return nil, false
}
