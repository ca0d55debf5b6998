// Package cache keeps fetched article pages so repeated corrections of the
// same URL do not hit the network.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const keyPrefix = "birthplace:v1:"

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// PageKey derives the cache key for an article URL. Fragments never change
// the fetched page, so they are ignored.
func PageKey(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		url = url[:i]
	}
	hash := sha256.Sum256([]byte(url))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// Nop caches nothing
type Nop struct{}

func (Nop) Get(string) ([]byte, bool)               { return nil, false }
func (Nop) Set(string, []byte, time.Duration) error { return nil }
func (Nop) Delete(string) error                     { return nil }
func (Nop) Clear() error                            { return nil }
