package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/greenwatch-runner/internal/identity"
)

// FileConfig controls NDJSON record logging.
type FileConfig struct {
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
}

// FileLine is one NDJSON line written by FileSink.
type FileLine struct {
	Time       time.Time `json:"time"`
	Collection string    `json:"collection"`
	SessionID  string    `json:"session_id,omitempty"`
	Content    string    `json:"content,omitempty"`
	Record     Record    `json:"record"`
}

// FileSink appends records to <Dir>/<session_id>.ndjson and, optionally, to
// one global file.
type FileSink struct {
	cfg FileConfig
	mu  sync.Mutex
}

// NewFile creates the log directory and returns a file sink.
func NewFile(cfg FileConfig) (*FileSink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file sink directory is empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if cfg.GlobalEnabled {
		if cfg.GlobalPath == "" {
			cfg.GlobalPath = filepath.Join(cfg.Dir, "all.ndjson")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global log directory: %w", err)
		}
	}
	return &FileSink{cfg: cfg}, nil
}

// Upsert appends the record. Records are never rewritten, so an upsert of an
// existing id adds a second line.
func (s *FileSink) Upsert(ctx context.Context, collection string, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line := FileLine{
		Time:       time.Now().UTC(),
		Collection: collection,
		SessionID:  record.SessionID(),
		Record:     record,
	}
	if text, ok := record["text"].(string); ok {
		line.Content = cleanForReadability(text)
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode line: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := appendFile(filepath.Join(s.cfg.Dir, sessionFileName(line.SessionID)), data); err != nil {
		return err
	}
	if s.cfg.GlobalEnabled {
		if err := appendFile(s.cfg.GlobalPath, data); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; files are opened per write.
func (s *FileSink) Close() error { return nil }

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func sessionFileName(sessionID string) string {
	switch {
	case sessionID == "":
		return "_unscoped.ndjson"
	case !identity.ValidSessionID(sessionID), strings.Contains(sessionID, ".."):
		return "_invalid.ndjson"
	default:
		return sessionID + ".ndjson"
	}
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// cleanForReadability strips terminal escapes and control characters.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

var _ Sink = (*FileSink)(nil)
