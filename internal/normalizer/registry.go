package normalizer

import (
	"fmt"
	"sort"
	"sync"
)

// Format identifiers.
const (
	FormatMarketplace1 = "marketplace1"

	// FormatMarketplace2 is declared so configs can name it, but its export
	// layout is not known yet and it is not registered.
	FormatMarketplace2 = "marketplace2"
)

// Format describes one marketplace export layout.
type Format struct {
	// ID is the identifier used in configuration ("marketplace1").
	ID string

	// Label is written to the ledger's marketplace column.
	Label string

	// Schema locates the fields inside a source record.
	Schema SourceSchema

	// AcceptStatus is the only status value that is copied forward.
	AcceptStatus string

	// DateLayout is the Go time layout of the source date field.
	DateLayout string
}

var (
	registry   = make(map[string]Format)
	declared   = map[string]bool{FormatMarketplace2: true}
	registryMu sync.RWMutex
)

func init() {
	Register(Format{
		ID:    FormatMarketplace1,
		Label: "Marketplace 1",
		Schema: SourceSchema{
			Date:        1,
			Country:     2,
			ProductCode: 3,
			Sales:       10,
			Status:      13,
		},
		AcceptStatus: "Closed",
		DateLayout:   DayMonthYear,
	})
}

// Register adds a format to the registry.
// Panics if the id is already registered or the schema is invalid.
func Register(f Format) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[f.ID]; exists {
		panic(fmt.Sprintf("source format already registered: %s", f.ID))
	}
	if err := f.Schema.Validate(); err != nil {
		panic(fmt.Sprintf("source format %s: %v", f.ID, err))
	}
	if f.DateLayout == "" {
		f.DateLayout = DayMonthYear
	}

	registry[f.ID] = f
}

// Lookup returns the registered format for id.
func Lookup(id string) (Format, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if f, ok := registry[id]; ok {
		return f, nil
	}
	if declared[id] {
		return Format{}, fmt.Errorf("%w: %s", ErrFormatNotImplemented, id)
	}
	return Format{}, fmt.Errorf("%w: %s", ErrUnknownFormat, id)
}

// Formats returns every registered format sorted by id.
func Formats() []Format {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Format, 0, len(registry))
	for _, f := range registry {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
