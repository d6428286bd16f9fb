package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/lending/internal/entities"
)

// Archiver writes expired audit events to JSON files before they are purged.
type Archiver struct {
	Dir string
}

func NewArchiver(dir string) *Archiver {
	return &Archiver{Dir: dir}
}

// archiveFile is the on-disk layout of one archive.
type archiveFile struct {
	ArchivedAt time.Time             `json:"archived_at"`
	Cutoff     time.Time             `json:"cutoff"`
	Events     []entities.AuditEvent `json:"events"`
}

// Archive saves events older than cutoff to a new file and returns its name.
func (a *Archiver) Archive(cutoff time.Time, events []entities.AuditEvent) (string, error) {
	return a.SaveJSON(archiveFile{
		ArchivedAt: time.Now().UTC(),
		Cutoff:     cutoff,
		Events:     events,
	})
}

// SaveJSON saves data as indented JSON to a file with a random UUID name.
func (a *Archiver) SaveJSON(data any) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	filename := fmt.Sprintf("audit-%s.json", uuid.New().String())
	path := filepath.Join(a.Dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive: %w", err)
	}
	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}

	log.Printf("[AUDIT] Archived to %s", path)
	return filename, nil
}
