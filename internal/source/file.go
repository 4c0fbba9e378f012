package source

import (
	"fmt"
	"path/filepath"

	"github.com/TimelordUK/mtail/internal/index"
	mtailio "github.com/TimelordUK/mtail/internal/io"
)

// FileSource tails a single file
type FileSource struct {
	file   *mtailio.MappedFile
	cursor *index.LineCursor
	info   *SourceInfo
}

// NewFileSource opens path. The cursor starts at the beginning of the file
// when fromStart is set, otherwise after the last complete line.
func NewFileSource(path string, idx int, fromStart bool) (*FileSource, error) {
	file, err := mtailio.OpenMapped(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &FileSource{
		file:   file,
		cursor: index.NewLineCursor(),
		info:   &SourceInfo{Path: path, Name: filepath.Base(path), Index: idx},
	}
	if !fromStart {
		end, err := index.TailStart(file, 0)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("seek %s: %w", path, err)
		}
		s.cursor.Seek(end, 0)
	}
	return s, nil
}

// Info identifies the source
func (s *FileSource) Info() *SourceInfo {
	return s.info
}

// Prime moves the cursor back to cover the last n complete lines and
// returns them. It only makes sense before the first Poll.
func (s *FileSource) Prime(n int) ([]Line, error) {
	if n <= 0 {
		return nil, nil
	}
	start, err := index.TailStart(s.file, n)
	if err != nil {
		return nil, fmt.Errorf("prime %s: %w", s.info.Path, err)
	}
	if start < s.cursor.Pos() {
		lineNo := 0
		if start == 0 {
			lineNo = 1
		}
		s.cursor.Seek(start, lineNo)
	}
	p, err := s.Poll(0)
	return p.Lines, err
}

// Poll checks whether the file has grown and returns up to limit new
// complete lines (0 for no limit). A shrunken file is read from the start.
func (s *FileSource) Poll(limit int) (Poll, error) {
	var p Poll

	growth, err := s.file.Refresh()
	if err != nil {
		return p, fmt.Errorf("refresh %s: %w", s.info.Path, err)
	}
	if growth == mtailio.Truncated {
		s.cursor.Reset()
		p.Truncated = true
	}

	raw, err := s.cursor.Next(s.file, limit)
	first := s.cursor.LineNo() - len(raw)
	for i, content := range raw {
		line := Line{Content: content, Source: s.info}
		if s.cursor.LineNo() > 0 {
			line.LineNo = first + i
		}
		p.Lines = append(p.Lines, line)
	}
	if err != nil {
		return p, fmt.Errorf("read %s: %w", s.info.Path, err)
	}
	return p, nil
}

// Close closes the file source
func (s *FileSource) Close() error {
	return s.file.Close()
}

// Path returns the file path
func (s *FileSource) Path() string {
	return s.info.Path
}
