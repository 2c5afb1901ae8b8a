// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"
)

//go:embed static
var embedded embed.FS

// StaticFS returns the embedded front end.
func StaticFS() fs.FS {
	sub, err := fs.Sub(embedded, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// ============================================================================
// ASSET CACHE
// ============================================================================

// Cache identity and the app shell URLs stored at install time.
const CacheName = "memento-ai-cache-v1"

// PrecacheURLs are loaded into the cache when it is created.
var PrecacheURLs = []string{"/", "/index.html"}

// ServiceWorkerPath is served with a root scope and no caching.
const ServiceWorkerPath = "/sw.js"

type cachedAsset struct {
	body        []byte
	contentType string
	modTime     time.Time
}

// AssetCache serves the front end cache-first. Precached URLs are answered
// from memory; everything else falls through to the origin file system.
type AssetCache struct {
	name   string
	origin fs.FS
	files  http.Handler

	mu      sync.RWMutex
	entries map[string]cachedAsset
}

// NewAssetCache creates a cache named name over origin.
func NewAssetCache(name string, origin fs.FS) *AssetCache {
	return &AssetCache{
		name:    name,
		origin:  origin,
		files:   http.FileServer(http.FS(origin)),
		entries: make(map[string]cachedAsset),
	}
}

// Name returns the cache name.
func (c *AssetCache) Name() string {
	return c.name
}

// Precache reads each URL from the origin and stores it. It fails on the
// first URL that cannot be read, leaving earlier ones cached.
func (c *AssetCache) Precache(urls ...string) error {
	for _, u := range urls {
		name := originName(u)
		body, err := fs.ReadFile(c.origin, name)
		if err != nil {
			return fmt.Errorf("precache %s: %w", u, err)
		}
		c.mu.Lock()
		c.entries[u] = cachedAsset{
			body:        body,
			contentType: contentType(name),
			modTime:     time.Now(),
		}
		c.mu.Unlock()
	}
	return nil
}

// Match returns the cached body for url.
func (c *AssetCache) Match(url string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[url]
	return a.body, ok
}

// Keys returns the cached URLs.
func (c *AssetCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Delete drops url from the cache.
func (c *AssetCache) Delete(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	delete(c.entries, url)
	return ok
}

// ServeHTTP answers from the cache, falling back to the origin.
func (c *AssetCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == ServiceWorkerPath {
		w.Header().Set("Service-Worker-Allowed", "/")
		w.Header().Set("Cache-Control", "no-cache")
	}

	c.mu.RLock()
	a, ok := c.entries[r.URL.Path]
	c.mu.RUnlock()
	if ok {
		w.Header().Set("Content-Type", a.contentType)
		w.Header().Set("X-Cache", "HIT")
		http.ServeContent(w, r, r.URL.Path, a.modTime, bytes.NewReader(a.body))
		return
	}

	w.Header().Set("X-Cache", "MISS")
	c.files.ServeHTTP(w, r)
}

// originName maps a URL path to a file in the origin.
func originName(url string) string {
	name := strings.TrimPrefix(path.Clean("/"+url), "/")
	if name == "" {
		return "index.html"
	}
	return name
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
