package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ImportConfig defines the flashcard import configuration
type ImportConfig struct {
	FrontColumn string // Column with the card front
	BackColumn  string // Column with the card back
	DeckColumn  string // Optional column with the deck title
	SheetName   string // Sheet to import; empty means the first sheet
	StartRow    int    // The row to start importing from (1-based index)
	// DefaultDeck titles cards that carry no deck.
	DefaultDeck string
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		FrontColumn: "A",
		BackColumn:  "B",
		DeckColumn:  "C",
		StartRow:    2, // skip the header
		DefaultDeck: "Geïmporteerd",
	}
}

// ImportedDeck is a deck read from a file, in file order.
type ImportedDeck struct {
	Title string
	Cards []models.Flashcard
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Decks          []ImportedDeck
	Errors         []string
}

func (r *ImportResult) add(deck string, card models.Flashcard) {
	for i := range r.Decks {
		if strings.EqualFold(r.Decks[i].Title, deck) {
			r.Decks[i].Cards = append(r.Decks[i].Cards, card)
			r.Imported++
			return
		}
	}
	r.Decks = append(r.Decks, ImportedDeck{Title: deck, Cards: []models.Flashcard{card}})
	r.Imported++
}

// ImportFlashcards reads flashcards from an xlsx or csv stream. name is only
// used to pick the format by extension.
func ImportFlashcards(name string, r io.Reader, config ImportConfig) (*ImportResult, error) {
	if config.StartRow < 1 {
		config.StartRow = 1
	}
	if config.DefaultDeck == "" {
		config.DefaultDeck = DefaultImportConfig().DefaultDeck
	}
	if strings.ToLower(filepath.Ext(name)) == ".csv" {
		return importFromCSV(r, config)
	}
	return importFromExcel(r, config)
}

func importFromExcel(r io.Reader, config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows")
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < config.StartRow-1 {
			continue
		}
		result.TotalProcessed++
		if err := processRow(row, config, config.DefaultDeck, result); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}
	return result, nil
}

// importFromCSV also understands deck header rows: a row with only its first
// field set starts a new deck for the rows below it.
func importFromCSV(r io.Reader, config ImportConfig) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	result := &ImportResult{Errors: make([]string, 0)}
	currentDeck := config.DefaultDeck
	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "error reading CSV")
		}
		rowNum++
		if rowNum < config.StartRow {
			continue
		}

		if title, ok := deckHeader(row); ok {
			currentDeck = title
			continue
		}

		result.TotalProcessed++
		if err := processRow(row, config, currentDeck, result); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		}
	}
	return result, nil
}

func deckHeader(row []string) (string, bool) {
	if len(row) == 0 {
		return "", false
	}
	title := strings.Trim(strings.TrimSpace(row[0]), "\"")
	if title == "" {
		return "", false
	}
	for _, field := range row[1:] {
		if strings.TrimSpace(field) != "" {
			return "", false
		}
	}
	return title, true
}

// processRow turns one row into a card of deck, or of the deck column when set.
func processRow(row []string, config ImportConfig, deck string, result *ImportResult) error {
	front := cleanText(cell(row, config.FrontColumn))
	back := cleanText(cell(row, config.BackColumn))
	if config.DeckColumn != "" {
		if d := strings.TrimSpace(cell(row, config.DeckColumn)); d != "" {
			deck = d
		}
	}

	if front == "" {
		return errors.New("front cannot be empty")
	}
	if back == "" {
		return errors.New("back cannot be empty")
	}
	result.add(deck, models.Flashcard{Front: front, Back: back})
	return nil
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

// cleanText collapses inner whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// columnToIndex converts an Excel column letter to a zero-based index.
func columnToIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	index := 0
	for i := 0; i < len(column); i++ {
		if column[i] < 'A' || column[i] > 'Z' {
			return -1
		}
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
