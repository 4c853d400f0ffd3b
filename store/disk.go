package store

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/justapithecus/adit/iox"
	"github.com/justapithecus/adit/types"
)

// Disk mirrors saved objects onto durable storage, one file per key
// under <root>/<env>/. Keys are path-escaped so namespaced keys like
// secrets/aws map to a single file name.
type Disk struct {
	root string
}

// NewDisk creates a durable mirror rooted at root.
func NewDisk(root string) *Disk {
	return &Disk{root: root}
}

// Root returns the mirror's root directory.
func (d *Disk) Root() string {
	return d.root
}

// Save writes the serialized object for key.
func (d *Disk) Save(env, key string, data []byte) error {
	return iox.WriteFileAtomic(d.path(env, key), data, 0o600)
}

// Load reads the serialized object for key. Absence reports
// KeyNotFound.
func (d *Disk) Load(env, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(env, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.KeyNotFound("load", key)
		}
		return nil, err
	}
	return data, nil
}

// Remove deletes the saved object if present. Absence is not an error.
func (d *Disk) Remove(env, key string) error {
	err := os.Remove(d.path(env, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Rename moves a saved object between keys. Absence of the old key is
// not an error; the in-memory store is authoritative for rename
// semantics and the mirror follows along when it can.
func (d *Disk) Rename(env, oldKey, newKey string) error {
	err := os.Rename(d.path(env, oldKey), d.path(env, newKey))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys lists the saved keys for env, sorted.
func (d *Disk) Keys(env string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, url.PathEscape(env)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		key, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Disk) path(env, key string) string {
	return filepath.Join(d.root, url.PathEscape(env), url.PathEscape(key))
}
