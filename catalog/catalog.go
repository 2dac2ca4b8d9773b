package catalog

import (
	"sync"

	"github.com/pkg/errors"

	"reldb/buffer"
	"reldb/disk"
	"reldb/record"
)

// Catalog maps table names to their record file handles. It is the registry
// abort undo consults to resolve a write record's table name; schema
// information beyond the fixed record size is out of its scope.
//
// The catalog also owns one latch per table. FileHandle itself carries no
// synchronization, so everything that touches a table's pages or header must
// hold that table's latch: write-locked for mutations, read-locked for reads.
type Catalog struct {
	mut     sync.RWMutex
	dm      disk.IDiskManager
	pool    buffer.Pool
	tables  map[string]*record.FileHandle
	latches map[string]*sync.RWMutex
}

func NewCatalog(dm disk.IDiskManager, pool buffer.Pool) *Catalog {
	return &Catalog{
		dm:      dm,
		pool:    pool,
		tables:  map[string]*record.FileHandle{},
		latches: map[string]*sync.RWMutex{},
	}
}

// CreateTable creates the page file for a new table and registers it.
func (c *Catalog) CreateTable(name string, recordSize int) (*record.FileHandle, error) {
	c.mut.Lock()
	defer c.mut.Unlock()

	if _, ok := c.tables[name]; ok {
		return nil, errors.Errorf("table already exists: %v", name)
	}

	fh, err := record.CreateFile(c.dm, c.pool, name, recordSize)
	if err != nil {
		return nil, err
	}

	c.tables[name] = fh
	c.latches[name] = &sync.RWMutex{}
	return fh, nil
}

// OpenTable opens an existing table's file and registers it.
func (c *Catalog) OpenTable(name string) (*record.FileHandle, error) {
	c.mut.Lock()
	defer c.mut.Unlock()

	if fh, ok := c.tables[name]; ok {
		return fh, nil
	}

	fh, err := record.OpenFile(c.dm, c.pool, name)
	if err != nil {
		return nil, err
	}

	c.tables[name] = fh
	c.latches[name] = &sync.RWMutex{}
	return fh, nil
}

// GetTable returns the handle registered under name, nil when there is none.
func (c *Catalog) GetTable(name string) *record.FileHandle {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.tables[name]
}

// TableLatch returns the latch serializing access to the named table's file,
// nil when the table is not registered.
func (c *Catalog) TableLatch(name string) *sync.RWMutex {
	c.mut.RLock()
	defer c.mut.RUnlock()
	return c.latches[name]
}

// DropTable closes the table's file and deletes it from disk. The table's
// cached pages are dropped from the pool first so that no later eviction
// writes to a closed file.
func (c *Catalog) DropTable(name string) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	fh, ok := c.tables[name]
	if !ok {
		return errors.Errorf("table does not exist: %v", name)
	}

	if err := c.pool.RemoveFile(fh.FileID()); err != nil {
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}
	delete(c.tables, name)
	delete(c.latches, name)
	return c.dm.DeleteFile(name)
}

func (c *Catalog) TableNames() []string {
	c.mut.RLock()
	defer c.mut.RUnlock()

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// Close drops every table's pages from the pool, flushes the headers and
// closes the files.
func (c *Catalog) Close() error {
	c.mut.Lock()
	defer c.mut.Unlock()

	for name, fh := range c.tables {
		if err := c.pool.RemoveFile(fh.FileID()); err != nil {
			return err
		}
		if err := fh.Close(); err != nil {
			return err
		}
		delete(c.tables, name)
		delete(c.latches, name)
	}
	return nil
}
