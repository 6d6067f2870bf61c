package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/config"
	"github.com/hpungsan/almanac/internal/db"
	"github.com/hpungsan/almanac/internal/errors"
	"github.com/hpungsan/almanac/internal/journal"
)

// ExportSchemaVersion is written in the header line of every export.
const ExportSchemaVersion = "1.0"

// Export record types.
const (
	RecordProject    = "project"
	RecordNote       = "note"
	RecordTask       = "task"
	RecordEntry      = "entry"
	RecordAbsorption = "absorption"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path      string `json:"path,omitempty"`       // optional, default: <base>/exports/<project>-<timestamp>.jsonl
	ProjectID int64  `json:"project_id,omitempty"` // optional filter; 0 exports every project
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Projects   int    `json:"projects"`
	Records    int    `json:"records"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a JSONL export file.
type ExportHeader struct {
	AlmanacExport bool   `json:"_almanac_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportRecord wraps one exported row with its type.
type ExportRecord struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Export writes projects with their notes, tasks, entries and absorption runs
// to a JSONL file. The file is written to a temp name and renamed into place,
// so an existing export is never left half-written.
func Export(ctx context.Context, database *sqlx.DB, cfg *config.Config, baseDir string, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()

	var projects []journal.Project
	if input.ProjectID != 0 {
		p, err := GetProject(ctx, database, input.ProjectID)
		if err != nil {
			return nil, err
		}
		projects = []journal.Project{*p}
	} else {
		all, err := db.ListProjects(ctx, database)
		if err != nil {
			return nil, err
		}
		projects = all
	}

	exportPath := input.Path
	if exportPath == "" {
		name := "all"
		if input.ProjectID != 0 {
			name = SanitizeForFilename(journal.Normalize(projects[0].Name))
		}
		exportPath = filepath.Join(ExportsDir(baseDir), fmt.Sprintf("%s-%s.jsonl", name, now.Format("2006-01-02T150405")))
	}

	// Default paths are validated too: project names end up in them.
	if err := ValidateExportPath(exportPath, baseDir, cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := writeJSONLine(file, ExportHeader{
		AlmanacExport: true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    exportedAt,
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	records := 0
	for _, p := range projects {
		select {
		case <-ctx.Done():
			return nil, errors.NewCancelled("export")
		default:
		}

		n, err := exportProject(ctx, database, file, p)
		if err != nil {
			return nil, err
		}
		records += n
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted since validation.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows os.Rename fails if the destination exists. Fail and keep the
	// existing file rather than delete-then-rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows yet (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Projects:   len(projects),
		Records:    records,
		ExportedAt: exportedAt,
	}, nil
}

// exportProject writes one project and everything it owns, returning the
// number of records written.
func exportProject(ctx context.Context, database *sqlx.DB, w io.Writer, p journal.Project) (int, error) {
	notes, err := db.ListNotes(ctx, database, p.ID, 0)
	if err != nil {
		return 0, err
	}
	tasks, err := db.ListTasks(ctx, database, p.ID)
	if err != nil {
		return 0, err
	}
	entries, err := db.ListEntries(ctx, database, p.ID, "", 0)
	if err != nil {
		return 0, err
	}
	runs, err := db.ListAbsorptions(ctx, database, p.ID, 0)
	if err != nil {
		return 0, err
	}

	out := make([]ExportRecord, 0, 1+len(notes)+len(tasks)+len(entries)+len(runs))
	out = append(out, ExportRecord{Type: RecordProject, Data: p})
	for _, n := range notes {
		out = append(out, ExportRecord{Type: RecordNote, Data: n})
	}
	for _, t := range tasks {
		out = append(out, ExportRecord{Type: RecordTask, Data: t})
	}
	for _, e := range entries {
		out = append(out, ExportRecord{Type: RecordEntry, Data: e})
	}
	for _, r := range runs {
		out = append(out, ExportRecord{Type: RecordAbsorption, Data: r})
	}

	for _, rec := range out {
		if err := writeJSONLine(w, rec); err != nil {
			return 0, errors.NewInternal(err)
		}
	}
	return len(out), nil
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
