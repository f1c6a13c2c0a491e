package storetest

import (
	"context"
	"io"
	"sort"
	"sync"
)

// Objects is an in-memory object store.
type Objects struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailDelete and FailUpload make the matching operation return ErrInjected.
	FailDelete bool
	FailUpload bool
}

// NewObjects returns an empty object store.
func NewObjects() *Objects {
	return &Objects{objects: map[string][]byte{}}
}

// Upload stores the body under key.
func (o *Objects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if o.FailUpload {
		return ErrInjected
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = raw
	return nil
}

// Delete removes key. Missing keys are not an error.
func (o *Objects) Delete(_ context.Context, key string) error {
	if o.FailDelete {
		return ErrInjected
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

// PlaybackURL returns a fake signed URL.
func (o *Objects) PlaybackURL(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key + "?sig=play", nil
}

// DownloadURL returns a fake signed URL that forces download.
func (o *Objects) DownloadURL(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key + "?sig=dl&response-content-disposition=attachment", nil
}

// Put seeds an object.
func (o *Objects) Put(key string, body []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = body
}

// Get returns the stored body and whether it exists.
func (o *Objects) Get(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[key]
	return b, ok
}

// Keys lists stored keys in order.
func (o *Objects) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
