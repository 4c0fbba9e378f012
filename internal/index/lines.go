package index

import (
	"bytes"

	mtailio "github.com/TimelordUK/mtail/internal/io"
)

const chunkSize = 64 * 1024 // 64KB chunks

// LineCursor walks complete lines of a growing file. A trailing line
// without a newline is held back until the writer finishes it.
type LineCursor struct {
	pos    int64 // byte offset of the next unread line
	lineNo int   // 1-based number of the next unread line, 0 when unknown
}

// NewLineCursor starts at the beginning of the file
func NewLineCursor() *LineCursor {
	return &LineCursor{lineNo: 1}
}

// Pos returns the byte offset of the next unread line
func (c *LineCursor) Pos() int64 {
	return c.pos
}

// LineNo returns the number of the next unread line, or 0 when the cursor
// started part way through the file
func (c *LineCursor) LineNo() int {
	return c.lineNo
}

// Reset moves back to the start of the file
func (c *LineCursor) Reset() {
	c.pos = 0
	c.lineNo = 1
}

// Seek moves to an absolute line start
func (c *LineCursor) Seek(pos int64, lineNo int) {
	c.pos = pos
	c.lineNo = lineNo
}

// Next returns the complete lines written since the last call, without
// their line endings, reading at most limit lines (0 for no limit)
func (c *LineCursor) Next(file *mtailio.MappedFile, limit int) ([][]byte, error) {
	size := file.Size()
	var lines [][]byte
	buf := make([]byte, chunkSize)

	for c.pos < size {
		readSize := int64(chunkSize)
		if c.pos+readSize > size {
			readSize = size - c.pos
		}

		n, err := file.ReadAt(buf[:readSize], c.pos)
		if err != nil {
			return lines, err
		}

		chunk := buf[:n]
		idx := bytes.IndexByte(chunk, '\n')
		if idx == -1 {
			// A line longer than a chunk, read it whole
			nl, err := c.longLine(file, size)
			if err != nil || nl == nil {
				return lines, err
			}
			lines = append(lines, nl)
		} else {
			offset := 0
			for idx != -1 {
				line := bytes.TrimRight(chunk[offset:offset+idx], "\r")
				lines = append(lines, bytes.Clone(line))
				offset += idx + 1
				c.advance(int64(idx + 1))
				if limit > 0 && len(lines) >= limit {
					return lines, nil
				}
				idx = bytes.IndexByte(chunk[offset:], '\n')
			}
		}
		if limit > 0 && len(lines) >= limit {
			return lines, nil
		}
	}
	return lines, nil
}

func (c *LineCursor) advance(n int64) {
	c.pos += n
	if c.lineNo > 0 {
		c.lineNo++
	}
}

// longLine reads one line that spans several chunks. It returns nil when
// the line is not finished yet.
func (c *LineCursor) longLine(file *mtailio.MappedFile, size int64) ([]byte, error) {
	for end := c.pos + chunkSize; ; end += chunkSize {
		if end > size {
			end = size
		}
		data, err := file.ReadRange(c.pos, end)
		if err != nil {
			return nil, err
		}
		if idx := bytes.IndexByte(data, '\n'); idx != -1 {
			c.advance(int64(idx + 1))
			return bytes.TrimRight(data[:idx], "\r"), nil
		}
		if end == size {
			return nil, nil
		}
	}
}

// TailStart finds the byte offset where the last n complete lines begin.
// Bytes after the final newline are an unfinished line and do not count.
func TailStart(file *mtailio.MappedFile, n int) (int64, error) {
	size := file.Size()
	if n <= 0 || size == 0 {
		return lastNewline(file, size)
	}

	end, err := lastNewline(file, size)
	if err != nil || end == 0 {
		return 0, err
	}

	// Walk backwards from the last complete line counting newlines
	seen := 0
	buf := make([]byte, chunkSize)
	pos := end - 1 // skip the newline that ends the last line
	for pos > 0 {
		start := max(pos-chunkSize, 0)
		chunk := buf[:pos-start]
		if _, err := file.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		for i := len(chunk) - 1; i >= 0; i-- {
			if chunk[i] != '\n' {
				continue
			}
			seen++
			if seen == n {
				return start + int64(i) + 1, nil
			}
		}
		pos = start
	}
	return 0, nil
}

// lastNewline returns the offset just past the final newline in the file
func lastNewline(file *mtailio.MappedFile, size int64) (int64, error) {
	buf := make([]byte, chunkSize)
	for pos := size; pos > 0; {
		start := max(pos-chunkSize, 0)
		chunk := buf[:pos-start]
		if _, err := file.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i != -1 {
			return start + int64(i) + 1, nil
		}
		pos = start
	}
	return 0, nil
}
