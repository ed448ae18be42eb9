package namespace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Namespace = (*FileSystemNamespace)(nil)

// FileSystemNamespace persists the registry under a directory. Every
// mutation is appended to a journal and synced before it is applied,
// so a crash never loses an acknowledged change. On load the snapshot
// is read first and the journals are replayed over it in order.
type FileSystemNamespace struct {
	mu               sync.RWMutex
	store            map[string]Entry
	baseDir          string
	journalFile      *os.File
	journalName      string
	snapshotInterval time.Duration
	stopCh           chan struct{}
	loopDone         chan struct{}
	closeOnce        sync.Once
}

type journalEntry struct {
	Op      string    `json:"op"` // "PUT" (create or replace) or "DEL" (remove)
	Name    string    `json:"name"`
	URN     string    `json:"urn,omitempty"`
	Length  int64     `json:"length,omitempty"`
	Updated time.Time `json:"updated,omitempty"`
}

// NewFileSystemNamespace opens (or creates) the registry rooted at
// baseDir. A snapshotInterval of zero disables background compaction;
// Close still compacts.
func NewFileSystemNamespace(baseDir string, snapshotInterval time.Duration) (*FileSystemNamespace, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	ns := &FileSystemNamespace{
		store:            make(map[string]Entry),
		baseDir:          baseDir,
		snapshotInterval: snapshotInterval,
		stopCh:           make(chan struct{}),
	}

	// 1. Load snapshot
	snapshotPath := filepath.Join(baseDir, "snapshot.json")
	if data, err := os.ReadFile(snapshotPath); err == nil {
		if err := json.Unmarshal(data, &ns.store); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	// 2. Replay journals over the snapshot
	for _, journal := range journalNames(baseDir) {
		if err := ns.applyJournal(filepath.Join(baseDir, journal)); err != nil {
			return nil, fmt.Errorf("failed to apply journal %s: %w", journal, err)
		}
	}

	// 3. Open new journal
	if err := ns.openNewJournal(); err != nil {
		return nil, err
	}

	// 4. Start background snapshot goroutine
	if snapshotInterval > 0 {
		ns.loopDone = make(chan struct{})
		go ns.snapshotLoop()
	}

	return ns, nil
}

func journalNames(baseDir string) []string {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil
	}
	var journals []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "journal-") && strings.HasSuffix(entry.Name(), ".jsonl") {
			journals = append(journals, entry.Name())
		}
	}
	sort.Strings(journals)
	return journals
}

func (n *FileSystemNamespace) applyJournal(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // Skip malformed lines
		}
		switch entry.Op {
		case "PUT":
			n.store[entry.Name] = Entry{URN: entry.URN, Length: entry.Length, Updated: entry.Updated}
		case "DEL":
			delete(n.store, entry.Name)
		}
	}
	return scanner.Err()
}

func (n *FileSystemNamespace) openNewJournal() error {
	name := fmt.Sprintf("journal-%d.jsonl", time.Now().UnixNano())
	path := filepath.Join(n.baseDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	if n.journalFile != nil {
		n.journalFile.Close()
	}

	n.journalFile = file
	n.journalName = name
	return nil
}

// appendJournal writes and syncs one journal line. Callers hold the
// write lock.
func (n *FileSystemNamespace) appendJournal(entry journalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if _, err := n.journalFile.Write(data); err != nil {
		return err
	}
	return n.journalFile.Sync()
}

// Close compacts the registry into a snapshot and releases the
// journal. The namespace must not be used afterwards.
func (n *FileSystemNamespace) Close() error {
	n.closeOnce.Do(func() { close(n.stopCh) })
	// Wait for the background loop to exit: only one doSnapshot may
	// touch snapshot.tmp at a time.
	if n.loopDone != nil {
		<-n.loopDone
	}
	n.doSnapshot()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.journalFile != nil {
		err := n.journalFile.Close()
		n.journalFile = nil
		return err
	}
	return nil
}

func (n *FileSystemNamespace) Get(name string) (Entry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	entry, ok := n.store[name]
	if !ok {
		return Entry{}, fmt.Errorf("%q: %w", name, ErrNameNotFound)
	}
	return entry, nil
}

func (n *FileSystemNamespace) Set(name string, entry Entry) error {
	if err := checkName(name); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.journalFile == nil {
		return os.ErrClosed
	}
	err := n.appendJournal(journalEntry{
		Op:      "PUT",
		Name:    name,
		URN:     entry.URN,
		Length:  entry.Length,
		Updated: entry.Updated,
	})
	if err != nil {
		return err
	}

	n.store[name] = entry
	return nil
}

func (n *FileSystemNamespace) Remove(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.store[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrNameNotFound)
	}
	if n.journalFile == nil {
		return os.ErrClosed
	}
	if err := n.appendJournal(journalEntry{Op: "DEL", Name: name}); err != nil {
		return err
	}

	delete(n.store, name)
	return nil
}

func (n *FileSystemNamespace) List() ([]Named, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return sortedEntries(n.store), nil
}

func (n *FileSystemNamespace) snapshotLoop() {
	defer close(n.loopDone)
	ticker := time.NewTicker(n.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.doSnapshot()
		}
	}
}

func (n *FileSystemNamespace) doSnapshot() {
	n.mu.Lock()
	// Copy the map to safely marshal it outside the lock
	storeCopy := make(map[string]Entry, len(n.store))
	for k, v := range n.store {
		storeCopy[k] = v
	}

	// Create new journal while holding the lock
	if n.journalFile == nil {
		n.mu.Unlock()
		return
	}
	if err := n.openNewJournal(); err != nil {
		n.mu.Unlock()
		return
	}
	newJournal := n.journalName
	n.mu.Unlock()

	// 1. Write the copied store to a temporary snapshot file
	tmpPath := filepath.Join(n.baseDir, "snapshot.tmp")
	file, err := os.Create(tmpPath)
	if err != nil {
		return
	}

	if err := json.NewEncoder(file).Encode(storeCopy); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return
	}

	// Fsync before close
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return
	}

	// 2. Rename the temporary snapshot to the actual snapshot
	finalPath := filepath.Join(n.baseDir, "snapshot.json")
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return
	}

	// 3. Safely remove old journals
	for _, journal := range journalNames(n.baseDir) {
		if journal != newJournal {
			os.Remove(filepath.Join(n.baseDir, journal))
		}
	}
}
