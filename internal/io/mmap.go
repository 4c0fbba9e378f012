package io

import (
	"fmt"
	"os"

	"golang.org/x/exp/mmap"
)

// Growth describes what Refresh saw on disk
type Growth int

const (
	Unchanged Growth = iota
	Grown
	Truncated // the file shrank, so it was rotated or rewritten
)

// MappedFile provides memory-mapped read access to a file that may grow
type MappedFile struct {
	reader *mmap.ReaderAt
	size   int64
	path   string
}

// OpenMapped opens a file with memory mapping
func OpenMapped(path string) (*MappedFile, error) {
	m := &MappedFile{path: path}
	if err := m.remap(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MappedFile) remap() error {
	info, err := os.Stat(m.path)
	if err != nil {
		return err
	}

	if m.reader != nil {
		m.reader.Close()
		m.reader = nil
	}

	// Mapping an empty file fails on some platforms; wait for content instead
	if info.Size() == 0 {
		m.size = 0
		return nil
	}

	reader, err := mmap.Open(m.path)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", m.path, err)
	}
	m.reader = reader
	m.size = int64(reader.Len())
	return nil
}

// ReadAt reads len(p) bytes at offset
func (m *MappedFile) ReadAt(p []byte, off int64) (int, error) {
	if m.reader == nil {
		return 0, nil
	}
	return m.reader.ReadAt(p, off)
}

// Size returns the mapped size
func (m *MappedFile) Size() int64 {
	return m.size
}

// Path returns the file path
func (m *MappedFile) Path() string {
	return m.path
}

// Close closes the memory mapping
func (m *MappedFile) Close() error {
	if m.reader == nil {
		return nil
	}
	err := m.reader.Close()
	m.reader = nil
	return err
}

// Refresh re-maps the file if its size changed
func (m *MappedFile) Refresh() (Growth, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return Unchanged, err
	}

	newSize := info.Size()
	switch {
	case newSize == m.size:
		return Unchanged, nil
	case newSize < m.size:
		if err := m.remap(); err != nil {
			return Unchanged, err
		}
		return Truncated, nil
	default:
		if err := m.remap(); err != nil {
			return Unchanged, err
		}
		return Grown, nil
	}
}

// ReadRange reads bytes from start to end
func (m *MappedFile) ReadRange(start, end int64) ([]byte, error) {
	if end > m.size {
		end = m.size
	}
	if start >= end {
		return nil, nil
	}

	buf := make([]byte, end-start)
	_, err := m.reader.ReadAt(buf, start)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
