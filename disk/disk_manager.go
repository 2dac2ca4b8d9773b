package disk

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const PageSize int = 4096

// FileID identifies one open page file (one table) inside a Manager. It is
// process-local; it is not stored on disk.
type FileID int32

// PageID addresses one physical page: a file and a page number inside it.
// Page numbers start at 0; page 0 of a record file holds the file header.
type PageID struct {
	File   FileID
	PageNo int32
}

type IDiskManager interface {
	CreateFile(name string) (FileID, error)
	OpenFile(name string) (FileID, error)
	CloseFile(id FileID) error
	DeleteFile(name string) error

	ReadPage(pid PageID, dest []byte) error
	WritePage(pid PageID, data []byte) error
	Sync(id FileID) error

	GetFileName(id FileID) string
	IsOpen(name string) bool
	Close() error
}

var _ IDiskManager = &Manager{}

// Manager keeps one os.File per table and does page granular io on them. All
// paths are resolved relative to dir.
type Manager struct {
	dir    string
	mu     sync.Mutex
	files  map[FileID]*os.File
	names  map[FileID]string
	byName map[string]FileID
	nextID FileID
}

func NewDiskManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "could not create db directory %v", dir)
	}

	return &Manager{
		dir:    dir,
		files:  map[FileID]*os.File{},
		names:  map[FileID]string{},
		byName: map[string]FileID{},
	}, nil
}

// CreateFile creates a new empty page file and opens it. It is an error if a
// file with the same name already exists.
func (d *Manager) CreateFile(name string) (FileID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byName[name]; ok {
		return 0, errors.Errorf("file already open: %v", name)
	}

	f, err := os.OpenFile(d.path(name), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
	if err != nil {
		return 0, errors.Wrapf(err, "could not create file %v", name)
	}

	return d.register(name, f), nil
}

// OpenFile opens an existing page file.
func (d *Manager) OpenFile(name string) (FileID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.byName[name]; ok {
		return id, nil
	}

	f, err := os.OpenFile(d.path(name), os.O_RDWR, 0o666)
	if err != nil {
		return 0, errors.Wrapf(err, "could not open file %v", name)
	}

	return d.register(name, f), nil
}

func (d *Manager) CloseFile(id FileID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.files[id]
	if !ok {
		return errors.Errorf("file is not open: %v", id)
	}

	delete(d.byName, d.names[id])
	delete(d.names, id)
	delete(d.files, id)
	return f.Close()
}

// DeleteFile removes a file from disk. The file must be closed first.
func (d *Manager) DeleteFile(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byName[name]; ok {
		return errors.Errorf("cannot delete open file: %v", name)
	}
	return os.Remove(d.path(name))
}

func (d *Manager) ReadPage(pid PageID, dest []byte) error {
	f, err := d.file(pid.File)
	if err != nil {
		return err
	}

	n, err := f.ReadAt(dest[:PageSize], int64(pid.PageNo)*int64(PageSize))
	if err != nil {
		return errors.Wrapf(err, "could not read page %v of %v", pid.PageNo, d.GetFileName(pid.File))
	}
	if n != PageSize {
		panic("read bytes are not equal to page size")
	}
	return nil
}

func (d *Manager) WritePage(pid PageID, data []byte) error {
	f, err := d.file(pid.File)
	if err != nil {
		return err
	}

	n, err := f.WriteAt(data[:PageSize], int64(pid.PageNo)*int64(PageSize))
	if err != nil {
		return errors.Wrapf(err, "could not write page %v of %v", pid.PageNo, d.GetFileName(pid.File))
	}
	if n != PageSize {
		panic("written bytes are not equal to page size")
	}
	return nil
}

func (d *Manager) Sync(id FileID) error {
	f, err := d.file(id)
	if err != nil {
		return err
	}
	return f.Sync()
}

func (d *Manager) GetFileName(id FileID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.names[id]
}

func (d *Manager) IsOpen(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.byName[name]
	return ok
}

func (d *Manager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, f := range d.files {
		if err := f.Close(); err != nil {
			return err
		}
		delete(d.byName, d.names[id])
		delete(d.names, id)
		delete(d.files, id)
	}
	return nil
}

func (d *Manager) path(name string) string {
	return filepath.Join(d.dir, name)
}

// register must be called with mu held.
func (d *Manager) register(name string, f *os.File) FileID {
	d.nextID++
	id := d.nextID
	d.files[id] = f
	d.names[id] = name
	d.byName[name] = id
	return id
}

func (d *Manager) file(id FileID) (*os.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.files[id]
	if !ok {
		return nil, errors.Errorf("file is not open: %v", id)
	}
	return f, nil
}
