// Package fileio is the atomic file-IO adapter the core uses to read
// and write the markdown/JSON workspace (spec §1, §6). The workspace
// layout itself (Accounts/, People/, _today/, _archive/) is owned by
// this package; per-entity markdown rendering is a thin caller concern
// layered on top.
package fileio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Workspace resolves the on-disk layout described in spec §6.
type Workspace struct {
	Root string
}

// New returns a Workspace rooted at root.
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// TodayDataDir is _today/data/, where schedule/actions/emails/manifest
// and per-meeting prep JSON live.
func (w *Workspace) TodayDataDir() string { return filepath.Join(w.Root, "_today", "data") }

// PrepPath returns the path for a single meeting's prep artifact.
func (w *Workspace) PrepPath(meetingID string) string {
	return filepath.Join(w.TodayDataDir(), "preps", meetingID+".json")
}

// ArchiveDir returns the dated archive directory for the given day
// (YYYY-MM-DD).
func (w *Workspace) ArchiveDir(day string) string {
	return filepath.Join(w.Root, "_archive", day)
}

// AccountDir returns an account's tracker directory. If both parent and
// bu (business unit) are non-empty the account is nested under its parent per spec §6
// ("Accounts/{parent}/{bu}/").
func (w *Workspace) AccountDir(name, parent, bu string) string {
	if parent != "" && bu != "" {
		return filepath.Join(w.Root, "Accounts", parent, bu)
	}
	return filepath.Join(w.Root, "Accounts", name)
}

// PersonDir returns a person's tracker directory.
func (w *Workspace) PersonDir(name string) string {
	return filepath.Join(w.Root, "People", name)
}

// WriteJSONAtomic marshals v and writes it to path via a temp-file +
// rename so readers never observe a half-written file (spec §4.3, §6).
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path via temp-file + rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// MoveFile relocates a file, creating the destination directory if
// needed. Used by the inbox processor (routing) and the archive
// workflow (dated archive moves).
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
