package engine

// This file contains the undo journal of a load run.
// every document created during a run is recorded here first
// so that an interrupted or failed run can be reverted.

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// accessionLabel marks the journal line that records an issued accession
const accessionLabel = "accession"

// JournalEntry represents one document created during the run.
type JournalEntry struct {
	Timestamp  time.Time          `json:"timestamp"`
	Label      string             `json:"label"`
	Collection string             `json:"collection"`
	ID         primitive.ObjectID `json:"id"`
}

// Journal is the ordered undo log of a single run.
type Journal struct {
	mu              sync.Mutex
	runID           string
	entries         []JournalEntry
	issuedAccession string
	file            *os.File // Mirror file, opened on first write
	baseFilePath    string   // Directory for mirror files; empty keeps the journal in memory
	fileName        string
}

// NewJournal creates the journal of run runID. When journalDir is not empty every
// entry is mirrored to a file in that directory.
func NewJournal(runID, journalDir string) *Journal {
	return &Journal{
		runID:        runID,
		entries:      []JournalEntry{},
		baseFilePath: journalDir,
	}
}

// RunID returns the identifier of the run this journal belongs to
func (j *Journal) RunID() string {
	return j.runID
}

// FilePath returns the mirror file path, empty until something was written
func (j *Journal) FilePath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileName
}

// ensureFileOpen opens the mirror file of this run
func (j *Journal) ensureFileOpen(now time.Time) error {
	if j.baseFilePath == "" || j.file != nil {
		return nil
	}

	if err := os.MkdirAll(j.baseFilePath, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	fileName := filepath.Join(j.baseFilePath, fmt.Sprintf("load_%s_%s.journal", now.Format("2006-01-02"), j.runID))
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", fileName, err)
	}

	j.file = file
	j.fileName = fileName
	return nil
}

func (j *Journal) writeLine(timestamp time.Time, label, collection, details string) error {
	if err := j.ensureFileOpen(timestamp); err != nil {
		return err
	}
	if j.file == nil {
		return nil
	}
	line := fmt.Sprintf("%s | %s | %s | %s\n", timestamp.Format(time.RFC3339), label, collection, details)
	if _, err := j.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write to journal file: %w", err)
	}
	return j.file.Sync()
}

// AddEntry records a newly created document.
func (j *Journal) AddEntry(label, collection string, id primitive.ObjectID) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := JournalEntry{
		Timestamp:  time.Now(),
		Label:      label,
		Collection: collection,
		ID:         id,
	}
	j.entries = append(j.entries, entry)

	return j.writeLine(entry.Timestamp, entry.Label, entry.Collection, entry.ID.Hex())
}

// SetIssuedAccession records the accession code issued during this run
func (j *Journal) SetIssuedAccession(code string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.issuedAccession = code
	return j.writeLine(time.Now(), accessionLabel, CountersKey, code)
}

// IssuedAccession returns the accession issued during this run, if any
func (j *Journal) IssuedAccession() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.issuedAccession
}

// Entries returns a copy of the entries in insertion order
func (j *Journal) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := make([]JournalEntry, len(j.entries))
	copy(entries, j.entries)
	return entries
}

// Len returns the number of recorded documents
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Empty reports whether the run created nothing worth reverting
func (j *Journal) Empty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries) == 0 && j.issuedAccession == ""
}

// Discard forgets every entry and removes the mirror file.
func (j *Journal) Discard() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = []JournalEntry{}
	j.issuedAccession = ""

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
		j.file = nil
	}
	if j.fileName == "" {
		return nil
	}
	if err := os.Remove(j.fileName); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove journal file: %w", err)
	}
	j.fileName = ""
	return nil
}

// Close closes the journal file and keeps it on disk.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
		j.file = nil
	}
	return nil
}

// LoadJournal reads the mirror file left behind by an earlier run. The returned
// journal keeps the file path so a successful revert removes it.
func LoadJournal(fileName string) (*Journal, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file %s: %w", fileName, err)
	}
	defer file.Close()

	journal := &Journal{
		runID:    strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName)),
		entries:  []JournalEntry{},
		fileName: fileName,
	}

	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, " | ")
		if len(parts) != 4 {
			return nil, Error.New("journal %s line %d is malformed", fileName, lineNumber)
		}
		timestamp, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, Error.New("journal %s line %d has a bad timestamp: %v", fileName, lineNumber, err)
		}
		if parts[1] == accessionLabel {
			journal.issuedAccession = parts[3]
			continue
		}
		id, err := primitive.ObjectIDFromHex(parts[3])
		if err != nil {
			return nil, Error.New("journal %s line %d has a bad id: %v", fileName, lineNumber, err)
		}
		journal.entries = append(journal.entries, JournalEntry{
			Timestamp:  timestamp,
			Label:      parts[1],
			Collection: parts[2],
			ID:         id,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal file %s: %w", fileName, err)
	}
	return journal, nil
}
