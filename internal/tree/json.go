package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/CageChen/fxv/internal/relpath"
)

const (
	kindFile      = "file"
	kindDirectory = "directory"
)

type directoryJSON struct {
	Path           relpath.RelativePath `json:"path"`
	Entries        []Entry              `json:"entries"`
	ConflictStates ConflictStateSet     `json:"conflict_states"`
	ChangeStates   ChangeStateSet       `json:"change_states"`
}

type fileJSON struct {
	FileMetadata
	ChangeState   ChangeState   `json:"change_state"`
	ConflictState ConflictState `json:"conflict_state"`
}

// entryJSON is the decoding form of both entry kinds.
type entryJSON struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	File      *fileJSON  `json:"file"`
	Directory *Directory `json:"directory"`
}

type fileEntryJSON struct {
	Name string    `json:"name"`
	Kind string    `json:"kind"`
	File *fileJSON `json:"file"`
}

// dirEntryJSON always carries the directory field, so an unloaded directory
// ("directory": null) stays distinct from a loaded empty one.
type dirEntryJSON struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Directory *Directory `json:"directory"`
}

// MarshalJSON implements json.Marshaler.
func (d *Directory) MarshalJSON() ([]byte, error) {
	entries := d.entries
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(directoryJSON{
		Path:           d.path,
		Entries:        entries,
		ConflictStates: d.conflicts,
		ChangeStates:   d.changes,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Aggregates are recomputed from the decoded
// entries. The stored ones are added only when a direct entry is an unloaded directory,
// whose states the entries alone cannot account for.
func (d *Directory) UnmarshalJSON(data []byte) error {
	var raw directoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := NewDirectory(raw.Path, raw.Entries...)
	if slices.ContainsFunc(decoded.entries, Entry.IsUnloaded) {
		decoded.conflicts = decoded.conflicts.Union(raw.ConflictStates)
		decoded.changes = decoded.changes.Union(raw.ChangeStates)
	}
	*d = *decoded
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.isFile {
		return json.Marshal(fileEntryJSON{
			Name: e.name,
			Kind: kindFile,
			File: &fileJSON{
				FileMetadata:  e.file.Metadata,
				ChangeState:   e.file.Change,
				ConflictState: e.file.Conflict,
			},
		})
	}
	return json.Marshal(dirEntryJSON{Name: e.name, Kind: kindDirectory, Directory: e.dir})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Name == "" {
		return errors.New("entry without a name")
	}
	switch raw.Kind {
	case kindFile:
		if raw.File == nil {
			return fmt.Errorf("file entry %q without file data", raw.Name)
		}
		*e = NewFileEntry(raw.Name, FileInfo{
			Metadata: raw.File.FileMetadata,
			Change:   raw.File.ChangeState,
			Conflict: raw.File.ConflictState,
		})
	case kindDirectory:
		*e = NewDirectoryEntry(raw.Name, raw.Directory)
	default:
		return fmt.Errorf("entry %q has unknown kind %q", raw.Name, raw.Kind)
	}
	return nil
}
