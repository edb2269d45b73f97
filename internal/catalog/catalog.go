// Package catalog implements the persistent metadata store (spec.md C3):
// the set of record types and, per type, the set of named indices and
// their extraction paths. The catalog is rewritten in full on every
// mutation and is the authoritative answer to "which indices exist for
// type T" (I3, I4).
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/value"
)

const fileName = "catalog.json"

// IndexDef is the persisted shape of one index: its ordered paths.
type IndexDef struct {
	Paths []string `json:"paths"`
}

// typeDef is the persisted shape of one record type's indices.
type typeDef struct {
	Indices map[string]IndexDef `json:"indices"`
}

type onDisk struct {
	Types map[string]typeDef `json:"types"`
}

// Catalog is the in-memory image of the persisted catalog file.
type Catalog struct {
	root string

	mu    sync.RWMutex
	types map[string]typeDef

	pathCache *lru.Cache[string, []value.Path]
}

// Open loads the catalog file at root/catalog.json. If the file does not
// exist it returns an empty catalog; the file is first written by the
// first mutating call.
func Open(root string) (*Catalog, error) {
	c := &Catalog{root: root, types: make(map[string]typeDef)}
	cache, _ := lru.New[string, []value.Path](256)
	c.pathCache = cache

	path := filepath.Join(root, fileName)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, &eqlerr.CatalogError{Op: "read", Err: err}
	}
	var d onDisk
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, &eqlerr.CatalogError{Op: "unmarshal", Err: err}
	}
	if d.Types != nil {
		c.types = d.Types
	}
	return c, nil
}

// persist rewrites the whole catalog file: write to a temp file, fsync,
// then atomically rename over the real path, so a crash mid-write never
// leaves a half-written catalog in place.
func (c *Catalog) persist() error {
	d := onDisk{Types: c.types}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return &eqlerr.CatalogError{Op: "marshal", Err: err}
	}
	path := filepath.Join(c.root, fileName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &eqlerr.CatalogError{Op: "create_tmp", Err: err}
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return &eqlerr.CatalogError{Op: "write_tmp", Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &eqlerr.CatalogError{Op: "fsync", Err: err}
	}
	if err := f.Close(); err != nil {
		return &eqlerr.CatalogError{Op: "close_tmp", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &eqlerr.CatalogError{Op: "rename", Err: err}
	}
	return nil
}

// EnsureType registers t with an empty index set if it is not already
// known, persisting the catalog. No-op (and no write) if t is known.
func (c *Catalog) EnsureType(ctx context.Context, t string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.types[t]; ok {
		return nil
	}
	c.types[t] = typeDef{Indices: map[string]IndexDef{}}
	return c.persist()
}

// Types returns every record type ever registered (inserted into).
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.types))
	for t := range c.types {
		names = append(names, t)
	}
	return names
}

// HasType reports whether t has ever been registered (inserted into).
func (c *Catalog) HasType(t string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[t]
	return ok
}

// Indices returns the names of every index registered on t.
func (c *Catalog) Indices(t string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	td, ok := c.types[t]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(td.Indices))
	for n := range td.Indices {
		names = append(names, n)
	}
	return names
}

// IndexPaths returns the ordered paths of index name on type t, and
// whether it exists.
func (c *Catalog) IndexPaths(t, name string) ([]value.Path, bool) {
	key := t + "\x00" + name
	if cached, ok := c.pathCache.Get(key); ok {
		return cached, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	td, ok := c.types[t]
	if !ok {
		return nil, false
	}
	idx, ok := td.Indices[name]
	if !ok {
		return nil, false
	}
	paths := make([]value.Path, len(idx.Paths))
	for i, p := range idx.Paths {
		paths[i] = value.ParsePath(p)
	}
	c.pathCache.Add(key, paths)
	return paths, true
}

// CreateIndex registers a new index, persisting the catalog. It returns
// *eqlerr.DuplicateIndex if name already exists on t (I4); the caller is
// responsible for back-filling the index's namespace before (or as part
// of) making this call durable -- see Store.CreateIndex for the ordering
// that keeps spec.md O3 resolved (catalog only reflects a fully
// back-filled index).
func (c *Catalog) CreateIndex(ctx context.Context, t, name string, paths []value.Path) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	td, ok := c.types[t]
	if !ok {
		td = typeDef{Indices: map[string]IndexDef{}}
	}
	if _, exists := td.Indices[name]; exists {
		return &eqlerr.DuplicateIndex{Type: t, Name: name}
	}
	strPaths := make([]string, len(paths))
	for i, p := range paths {
		strPaths[i] = p.String()
	}
	if td.Indices == nil {
		td.Indices = map[string]IndexDef{}
	}
	td.Indices[name] = IndexDef{Paths: strPaths}
	c.types[t] = td
	if err := c.persist(); err != nil {
		delete(td.Indices, name)
		return err
	}
	c.pathCache.Remove(t + "\x00" + name)
	return nil
}

// DropIndex unregisters name from t, persisting the catalog. No-op if
// not present.
func (c *Catalog) DropIndex(ctx context.Context, t, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	td, ok := c.types[t]
	if !ok {
		return nil
	}
	if _, exists := td.Indices[name]; !exists {
		return nil
	}
	delete(td.Indices, name)
	c.types[t] = td
	c.pathCache.Remove(t + "\x00" + name)
	return c.persist()
}

// IndexNamespace returns the storage-façade namespace name for the
// (type, index) pair (spec.md §6).
func IndexNamespace(t, name string) string {
	return "#idx_" + t + "_" + name
}

// ValidateTypeName reports an error if t could be confused with an
// index namespace (record-type names must not begin with "#").
func ValidateTypeName(t string) error {
	if len(t) > 0 && t[0] == '#' {
		return errors.Errorf("record type name %q must not begin with '#'", t)
	}
	return nil
}
