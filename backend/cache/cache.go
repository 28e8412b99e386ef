package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/20after4/configdir"
)

// ErrWrite indicates the cache directory could not be created or the
// serialized entry could not be written.
var ErrWrite = errors.New("cache write failed")

// RootNamespace holds data not tied to one server: the host list, global
// settings, the radio-station list.
const RootNamespace = ""

// Cache is a durable key→JSON store, one file per key, namespaced per host.
// There is no TTL and no eviction; staleness is resolved by the library
// store's explicit last-updated comparison, never by the cache itself.
type Cache struct {
	baseDir string
}

func New(baseDir string) *Cache {
	return &Cache{baseDir: baseDir}
}

func (c *Cache) dir(namespace string) string {
	if namespace == RootNamespace {
		return c.baseDir
	}
	return filepath.Join(c.baseDir, namespace)
}

func (c *Cache) filePath(namespace, key string) string {
	return filepath.Join(c.dir(namespace), key+".cache")
}

// Get reads and decodes the entry for key. Missing files, unreadable files,
// and shape mismatches are all treated as a miss; decode failures are logged.
func Get[T any](c *Cache, namespace, key string) (T, bool) {
	var val T
	b, err := os.ReadFile(c.filePath(namespace, key))
	if err != nil {
		return val, false
	}
	if err := json.Unmarshal(b, &val); err != nil {
		log.Printf("cache entry %s/%s is malformed, treating as miss: %v", namespace, key, err)
		return val, false
	}
	return val, true
}

// Set serializes val and atomically writes it as the entry for key,
// creating the namespace directory on first use.
func Set[T any](c *Cache, namespace, key string, val T) error {
	dir := c.dir(namespace)
	if err := configdir.MakePath(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), c.filePath(namespace, key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Invalidate removes the entry for key, if present.
func (c *Cache) Invalidate(namespace, key string) {
	os.Remove(c.filePath(namespace, key))
}

// Has reports whether an entry exists for key without decoding it.
func (c *Cache) Has(namespace, key string) bool {
	_, err := os.Stat(c.filePath(namespace, key))
	return err == nil
}
