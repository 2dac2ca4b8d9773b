package wal

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
)

const (
	markerCommit byte = 1
	markerAbort  byte = 2

	markerSize = 9
)

var _ LogManager = &SyncLogManager{}

// SyncLogManager appends fixed size outcome markers to a single append-only
// file and fsyncs it on Flush. Markers are buffered in memory between
// flushes.
type SyncLogManager struct {
	mu  sync.Mutex
	f   *os.File
	buf []byte
}

func NewSyncLogManager(path string) (*SyncLogManager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open log file %v", path)
	}

	return &SyncLogManager{f: f, buf: make([]byte, 0, 1024)}, nil
}

func (l *SyncLogManager) AppendCommit(txnID uint64) {
	l.append(markerCommit, txnID)
}

func (l *SyncLogManager) AppendAbort(txnID uint64) {
	l.append(markerAbort, txnID)
}

func (l *SyncLogManager) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buf) > 0 {
		if _, err := l.f.Write(l.buf); err != nil {
			return errors.Wrap(err, "could not write log buffer")
		}
		l.buf = l.buf[:0]
	}
	return l.f.Sync()
}

func (l *SyncLogManager) Close() error {
	if err := l.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

func (l *SyncLogManager) append(kind byte, txnID uint64) {
	var rec [markerSize]byte
	rec[0] = kind
	binary.LittleEndian.PutUint64(rec[1:], txnID)

	l.mu.Lock()
	l.buf = append(l.buf, rec[:]...)
	l.mu.Unlock()
}
