package state

import (
	"sync"

	"github.com/punchagan/childrens-park/internal/fsstore"
)

// FileStore reads and writes the state document at a fixed path. Saves are
// atomic so a crash mid-write never leaves a torn document behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. A missing or empty file yields a fresh empty
// document and no error; a garbled file yields a fresh document plus an
// error wrapping fsstore.ErrDecodeFailed so the caller can log and carry on.
func (s *FileStore) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := NewDocument()
	if _, err := fsstore.ReadJSON(s.path, &doc); err != nil {
		return NewDocument(), err
	}
	return doc, nil
}

func (s *FileStore) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fsstore.WriteJSONAtomic(s.path, doc, fsstore.FileOptions{})
}
