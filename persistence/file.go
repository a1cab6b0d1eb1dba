// persistence/file.go
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const (
	snapshotFile = "snapshot.json"
	matchLogFile = "matches.log"
)

// FileStore keeps the snapshot as one JSON document on disk and the
// match history as a JSON-lines append log. It is the default backend.
type FileStore struct {
	dir   string
	mutex sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the snapshot atomically: a temp file in the same directory
// is renamed over the previous snapshot, so a crash mid-write never
// leaves a torn file behind.
func (f *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	tmp, err := os.CreateTemp(f.dir, snapshotFile+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(f.dir, snapshotFile))
}

// Load reads the last saved snapshot. A missing file is not an error, it
// yields an empty snapshot so a fresh data directory boots clean.
func (f *FileStore) Load() (*Snapshot, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	data, err := os.ReadFile(filepath.Join(f.dir, snapshotFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// AppendMatch appends one JSON line to the match log.
func (f *FileStore) AppendMatch(rec MatchRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	file, err := os.OpenFile(filepath.Join(f.dir, matchLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write(append(line, '\n'))
	return err
}

func (f *FileStore) Close() error {
	return nil
}
