// =============================================================================
// Marketplace Ledger - File Manager Utility
// =============================================================================
//
// This module provides the file chores around an ingest run:
//   - Directory management for logs and archives
//   - Source archival (moving ingested exports out of the way)
//   - Error log generation for skipped malformed records
//   - Processing summary generation
//
// ARCHIVAL STRATEGY:
//   - Source files are moved to the archive directory only after the ledger
//     was saved successfully
//   - Failed or dry runs leave every source file in place
//   - A file already present in the archive is never overwritten; the run
//     id is appended to the new name instead
//
// All file access goes through an afero.Fs so tests run in memory.
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations around an ingest run.
type FileManager struct {
	// Fs is the filesystem every operation uses.
	Fs afero.Fs

	// LogsDir receives error logs and summaries.
	LogsDir string

	// ArchiveDir receives ingested source files. Empty disables archival.
	ArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: archive/2024/01/15/marketplace_1.csv
	UseTimestampSubdirs bool

	now func() time.Time
}

// NewFileManager creates a FileManager on fs.
func NewFileManager(fs afero.Fs, logsDir, archiveDir string) *FileManager {
	return &FileManager{
		Fs:         fs,
		LogsDir:    logsDir,
		ArchiveDir: archiveDir,
		now:        time.Now,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the logs and archive directories if they don't
// exist. Empty settings are ignored.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.LogsDir, fm.ArchiveDir} {
		if dir == "" {
			continue
		}
		if err := fm.Fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// SOURCE ARCHIVAL
// =============================================================================

// ArchiveSource moves an ingested source file to the archive directory.
//
// PARAMETERS:
//   - filePath: The source file to archive.
//   - runID: Appended to the archived name when the plain name is taken.
//
// RETURNS:
//   - The path to the archived file, or filePath unchanged when archival is
//     disabled.
//   - An error if archival fails.
func (fm *FileManager) ArchiveSource(filePath, runID string) (string, error) {
	if fm.ArchiveDir == "" {
		return filePath, nil
	}

	archivePath := fm.archivePath(filePath)
	if FileExists(fm.Fs, archivePath) {
		ext := filepath.Ext(archivePath)
		archivePath = strings.TrimSuffix(archivePath, ext) + "_" + runID + ext
	}

	if err := fm.Fs.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := fm.Fs.Rename(filePath, archivePath); err != nil {
		// If rename fails (e.g., cross-device), try copy and delete.
		if err := copyFile(fm.Fs, filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := fm.Fs.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// archivePath constructs the archive path for a file.
func (fm *FileManager) archivePath(filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := fm.now()
		return filepath.Join(
			fm.ArchiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(fm.ArchiveDir, fileName)
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry is one skipped source record.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	LineNumber   int
	FieldName    string
	FieldValue   string
}

// WriteErrorLog writes error entries to a log file in LogsDir.
//
// PARAMETERS:
//   - runID: The run the entries belong to; it is part of the file name.
//   - entries: The error entries to write.
//
// RETURNS:
//   - The path to the error log file, or "" when there are no entries.
//   - An error if writing fails.
func (fm *FileManager) WriteErrorLog(runID string, entries []ErrorLogEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	now := fm.now()
	logPath := filepath.Join(fm.LogsDir, fmt.Sprintf("error_log_%s_%s.txt", now.Format("20060102_150405"), shortID(runID)))

	err := fm.writeFile(logPath, func(w *bufio.Writer) {
		fmt.Fprintf(w, "Marketplace Ledger - Error Log\n"+
			"Run ID: %s\n"+
			"Generated: %s\n"+
			"Total Errors: %d\n"+
			"================================================================================\n\n",
			runID,
			now.Format("2006-01-02 15:04:05"),
			len(entries))

		for i, entry := range entries {
			fmt.Fprintf(w, "Error #%d\n"+
				"  Timestamp:      %s\n"+
				"  File:           %s\n"+
				"  Error Type:     %s\n"+
				"  Message:        %s\n",
				i+1,
				entry.Timestamp.Format("2006-01-02 15:04:05"),
				entry.FileName,
				entry.ErrorType,
				entry.ErrorMessage)

			if entry.LineNumber > 0 {
				fmt.Fprintf(w, "  Line Number:    %d\n", entry.LineNumber)
			}
			if entry.FieldName != "" {
				fmt.Fprintf(w, "  Field:          %s\n", entry.FieldName)
			}
			if entry.FieldValue != "" {
				fmt.Fprintf(w, "  Value:          %s\n", entry.FieldValue)
			}
			w.WriteString("\n")
		}

		w.WriteString("================================================================================\n" +
			"End of Error Log\n")
	})
	if err != nil {
		return "", fmt.Errorf("failed to write error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about one ingest run.
type ProcessingSummary struct {
	RunID      string
	StartTime  time.Time
	EndTime    time.Time
	LedgerPath string
	Sheet      string
	DryRun     bool
	Saved      bool

	// FirstRow and LastRow are the ledger rows written; both are 0 when no
	// row was accepted.
	FirstRow int
	LastRow  int

	Sources []SourceSummary

	// Failure is the error that stopped the run, if any.
	Failure string
}

// SourceSummary contains the counters of one source file.
type SourceSummary struct {
	Path        string
	Format      string
	Read        int
	Accepted    int
	Filtered    int
	Skipped     int
	ArchivePath string
}

// WriteSummaryLog writes a processing summary to a file in LogsDir.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func (fm *FileManager) WriteSummaryLog(summary ProcessingSummary) (string, error) {
	summaryPath := filepath.Join(fm.LogsDir, fmt.Sprintf("processing_summary_%s_%s.txt",
		summary.StartTime.Format("20060102_150405"), shortID(summary.RunID)))

	rows := "none"
	if summary.FirstRow > 0 {
		rows = fmt.Sprintf("%d-%d", summary.FirstRow, summary.LastRow)
	}

	err := fm.writeFile(summaryPath, func(w *bufio.Writer) {
		fmt.Fprintf(w, "Marketplace Ledger - Processing Summary\n"+
			"================================================================================\n\n"+
			"Run Information:\n"+
			"  Run ID:         %s\n"+
			"  Start Time:     %s\n"+
			"  End Time:       %s\n"+
			"  Duration:       %s\n"+
			"  Ledger:         %s [%s]\n"+
			"  Rows Written:   %s\n"+
			"  Dry Run:        %t\n"+
			"  Saved:          %t\n\n",
			summary.RunID,
			summary.StartTime.Format("2006-01-02 15:04:05"),
			summary.EndTime.Format("2006-01-02 15:04:05"),
			summary.EndTime.Sub(summary.StartTime).String(),
			summary.LedgerPath, summary.Sheet,
			rows,
			summary.DryRun,
			summary.Saved)

		if len(summary.Sources) > 0 {
			w.WriteString("Sources:\n")
			w.WriteString("--------------------------------------------------------------------------------\n")
			for _, src := range summary.Sources {
				fmt.Fprintf(w, "  File:     %s (%s)\n", src.Path, src.Format)
				fmt.Fprintf(w, "  Read:     %d\n", src.Read)
				fmt.Fprintf(w, "  Accepted: %d\n", src.Accepted)
				fmt.Fprintf(w, "  Filtered: %d\n", src.Filtered)
				fmt.Fprintf(w, "  Skipped:  %d\n", src.Skipped)
				if src.ArchivePath != "" {
					fmt.Fprintf(w, "  Archive:  %s\n", src.ArchivePath)
				}
				w.WriteString("\n")
			}
		}

		if summary.Failure != "" {
			fmt.Fprintf(w, "Failure:\n  %s\n\n", summary.Failure)
		}

		w.WriteString("================================================================================\n" +
			"End of Summary\n")
	})
	if err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// writeFile creates path, lets fill write into a buffered writer, flushes
// and closes. A failed flush or close is returned.
func (fm *FileManager) writeFile(path string, fill func(w *bufio.Writer)) error {
	if err := fm.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := fm.Fs.Create(path)
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(file)
	fill(writer)
	if err := writer.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// copyFile copies a file from src to dst.
func copyFile(fs afero.Fs, src, dst string) error {
	sourceFile, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := fs.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return !os.IsNotExist(err)
}

// shortID keeps file names readable.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
