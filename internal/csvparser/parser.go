// =============================================================================
// Marketplace Ledger - Source File Parser
// =============================================================================
//
// This module reads marketplace export files one record at a time. Records
// are returned exactly as they appear in the file, in source column order;
// trimming and interpretation belong to the normalizer.
//
// FEATURES:
//   - Configurable delimiter (comma, tab, pipe, semicolon, any single char)
//   - Leading header lines can be skipped
//   - Variable number of fields per line and lazy quotes
//   - Lines containing only whitespace are skipped
//   - 1-based line numbers for diagnostics
//   - Reads through afero.Fs so tests can use an in-memory filesystem
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ginjaninja78/marketplace-ledger/internal/config"
	"github.com/spf13/afero"
)

// =============================================================================
// STREAMING PARSER
// =============================================================================

// StreamingParser reads a delimited file record by record.
//
// USAGE:
//   parser, err := NewStreamingParser(fs, path, settings)
//   if err != nil {
//       return err
//   }
//   defer parser.Close()
//
//   for parser.Next() {
//       record := parser.Record()
//       // Process the record...
//   }
//
//   if err := parser.Err(); err != nil {
//       return err
//   }
type StreamingParser struct {
	file    afero.File
	reader  *csv.Reader
	path    string
	current []string
	line    int
	count   int
	err     error
}

// NewStreamingParser opens path on fs and skips the configured header lines.
//
// PARAMETERS:
//   - fs: The filesystem to read from (afero.NewOsFs() in production).
//   - path: The path to the source file.
//   - settings: Delimiter and header settings for this source.
//
// RETURNS:
//   - A pointer to the StreamingParser. The caller must Close it.
//   - An error if the file cannot be opened or the header cannot be skipped.
func NewStreamingParser(fs afero.Fs, path string, settings config.CSVSettings) (*StreamingParser, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	reader := csv.NewReader(bufio.NewReader(file))
	configureReader(reader, settings)

	parser := &StreamingParser{
		file:   file,
		reader: reader,
		path:   path,
	}

	if err := parser.skipHeader(settings.HeaderRows); err != nil {
		file.Close()
		return nil, err
	}

	return parser, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	reader.Comma = delimiterRune(settings.Delimiter)

	// Exports are not always rectangular.
	reader.FieldsPerRecord = -1

	// Allow lazy quotes (quotes that don't follow strict CSV rules).
	reader.LazyQuotes = true

	// Field values are kept verbatim.
	reader.TrimLeadingSpace = false
}

// delimiterRune maps a configured delimiter name to its rune.
func delimiterRune(delimiter string) rune {
	switch delimiter {
	case "\\t", "\t", "tab", "TAB":
		return '\t'
	case "|", "pipe", "PIPE":
		return '|'
	case ";", "semicolon":
		return ';'
	default:
		if len(delimiter) > 0 {
			return rune(delimiter[0])
		}
		return ','
	}
}

// skipHeader discards the first n records.
func (p *StreamingParser) skipHeader(n int) error {
	for i := 0; i < n; i++ {
		_, err := p.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading header row %d: %w", i+1, err)
		}
	}
	return nil
}

// Next advances to the next non-empty record. Returns false when there are
// no more records or an error occurred.
func (p *StreamingParser) Next() bool {
	for p.err == nil {
		record, err := p.reader.Read()
		if errors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("%s: %w", p.path, err)
			return false
		}

		p.line, _ = p.reader.FieldPos(0)

		if isRowEmpty(record) {
			continue
		}

		p.current = record
		p.count++
		return true
	}
	return false
}

// Record returns the current record.
func (p *StreamingParser) Record() []string {
	return p.current
}

// Line returns the 1-based line number the current record starts on.
func (p *StreamingParser) Line() int {
	return p.line
}

// Count returns how many records Next has produced so far.
func (p *StreamingParser) Count() int {
	return p.count
}

// Err returns any error that occurred during parsing.
func (p *StreamingParser) Err() error {
	return p.err
}

// Close closes the underlying file.
func (p *StreamingParser) Close() error {
	return p.file.Close()
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
