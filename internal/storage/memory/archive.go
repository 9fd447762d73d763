// Package memory keeps archived documents in process memory.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// Object is one archived document.
type Object struct {
	ContentType string
	Data        []byte
}

// Archive stores documents in a map and returns memory:// URIs.
type Archive struct {
	mu      sync.RWMutex
	objects map[string]Object
}

var _ crawler.Archive = (*Archive)(nil)

// New returns an empty Archive.
func New() *Archive {
	return &Archive{objects: make(map[string]Object)}
}

// PutObject stores a copy of r under path.
func (a *Archive) PutObject(_ context.Context, path string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[path] = Object{ContentType: contentType, Data: data}
	return "memory://" + path, nil
}

// Get returns the object stored under path.
func (a *Archive) Get(path string) (Object, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	obj, ok := a.objects[path]
	if !ok {
		return Object{}, false
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, true
}

// Paths lists stored object paths in order.
func (a *Archive) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.objects))
	for p := range a.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
