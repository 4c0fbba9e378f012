package source

// SourceInfo identifies where a line came from (for merged views)
type SourceInfo struct {
	Path  string
	Name  string // display name, the base name unless two sources share it
	Index int    // which source in a merged view
}

// Line is one complete raw line read from a source
type Line struct {
	Content []byte
	Source  *SourceInfo
	LineNo  int // 1-based line number in the file, 0 when unknown
}

// Poll is the result of checking a source for new content
type Poll struct {
	Lines     []Line
	Truncated bool // the file shrank and was re-read from the start
}

// Tailer is anything that yields new lines on demand
type Tailer interface {
	Info() *SourceInfo
	Prime(n int) ([]Line, error)
	Poll(limit int) (Poll, error)
	Close() error
}
