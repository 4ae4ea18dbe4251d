package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "errtoast/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.ignored.json (JSON array of signatures)
//   - <prefix>.pinned.json  (JSON object: origin -> snapshot blob)
//
// Every write goes to a temp file and is renamed into place so readers in
// other processes never observe a partial document.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	closed bool

	dir         string
	ignoredPath string
	pinnedPath  string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{
		log:         log,
		dir:         dir,
		ignoredPath: prefix + ".ignored.json",
		pinnedPath:  prefix + ".pinned.json",
	}, nil
}

func (s *fileStore) LoadIgnored(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(s.ignoredPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) SaveIgnored(ctx context.Context, signatures []string) error {
	_ = ctx
	if signatures == nil {
		signatures = []string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return writeJSONAtomic(s.ignoredPath, signatures)
}

func (s *fileStore) LoadPinned(ctx context.Context, origin string) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	m, err := s.readPinnedLocked()
	if err != nil {
		return nil, err
	}
	raw, ok := m[origin]
	if !ok {
		return nil, nil
	}
	return []byte(raw), nil
}

func (s *fileStore) SavePinned(ctx context.Context, origin string, blob []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	m, err := s.readPinnedLocked()
	if err != nil {
		// A corrupt snapshot file only loses snapshots; start over.
		s.log.Warn("pinned snapshot file unreadable; rewriting", logx.String("path", s.pinnedPath), logx.Err(err))
		m = map[string]json.RawMessage{}
	}
	if len(blob) == 0 {
		delete(m, origin)
	} else {
		if !json.Valid(blob) {
			return errors.New("pinned snapshot is not valid JSON")
		}
		m[origin] = json.RawMessage(append([]byte(nil), blob...))
	}
	return writeJSONAtomic(s.pinnedPath, m)
}

func (s *fileStore) readPinnedLocked() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(s.pinnedPath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *fileStore) Watch(ctx context.Context, onChange func()) error {
	return watchFiles(ctx, s.dir, []string{filepath.Base(s.ignoredPath)}, onChange, s.log)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
