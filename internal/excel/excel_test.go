package excel

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleProgress() *models.UserProgress {
	p := models.NewUserProgress()
	p.Level, p.XP, p.StudyStreak = 3, 40, 5
	p.GlobalPulseCheck = &models.WeekMarker{Year: 2026, Week: 9}

	sp := p.Subject(models.SubjectEngels)
	sp.MasteryScores["grammar"] = models.MasteryScore{Correct: 2, Total: 3}
	sp.MasteryScores["vocabulary"] = models.MasteryScore{Correct: 1, Total: 1}
	sp.ProgressHistory = []models.ProgressPoint{{Date: civil.Date{Year: 2026, Month: 3, Day: 1}, AvgMastery: 83.333}}
	sp.Mistakes = []models.Mistake{
		{QuestionID: 7, UserAnswerText: "goed", RepetitionLevel: 1, NextReviewDate: civil.Date{Year: 2026, Month: 3, Day: 1}},
		{QuestionID: 8, RepetitionLevel: 0, NextReviewDate: civil.Date{Year: 2026, Month: 3, Day: 9}},
	}
	return p
}

func TestExportProgress(t *testing.T) {
	var buf bytes.Buffer
	err := ExportProgress(&buf, Report{
		UserID:      "u1",
		GeneratedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local),
		Progress:    sampleProgress(),
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetOverview, SheetMastery, SheetHistory, SheetMistakes}, f.GetSheetList())

	level, err := f.GetCellValue(SheetOverview, "B4")
	require.NoError(t, err)
	assert.Equal(t, "3", level)
	total, err := f.GetCellValue(SheetOverview, "B6")
	require.NoError(t, err)
	assert.Equal(t, "340", total)
	pulse, err := f.GetCellValue(SheetOverview, "B11")
	require.NoError(t, err)
	assert.Equal(t, "2026-W09", pulse)
	due, err := f.GetCellValue(SheetOverview, "B12")
	require.NoError(t, err)
	assert.Equal(t, "1", due)

	rows, err := f.GetRows(SheetMastery)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"engels", "grammar", "2", "3", "66.7"}, rows[1])
	assert.Equal(t, "vocabulary", rows[2][1])

	rows, err = f.GetRows(SheetHistory)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"engels", "2026-03-01", "83.3"}, rows[1])

	rows, err = f.GetRows(SheetMistakes)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "7", rows[1][1])
}

func TestExportProgressNeedsProgress(t *testing.T) {
	assert.Error(t, ExportProgress(&bytes.Buffer{}, Report{UserID: "u1"}))
}

func TestImportFlashcardsCSV(t *testing.T) {
	data := strings.Join([]string{
		"front,back,deck",
		"Werkwoorden,,",
		"go,  went ,",
		"see,saw,",
		",leeg,",
		"Begrippen,,",
		"inflatie,stijging van het prijspeil,",
		"vraag,aanbod,Economie",
	}, "\n")

	res, err := ImportFlashcards("cards.csv", strings.NewReader(data), DefaultImportConfig())
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalProcessed)
	assert.Equal(t, 4, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Row 5")

	require.Len(t, res.Decks, 3)
	assert.Equal(t, "Werkwoorden", res.Decks[0].Title)
	assert.Equal(t, []models.Flashcard{{Front: "go", Back: "went"}, {Front: "see", Back: "saw"}}, res.Decks[0].Cards)
	assert.Equal(t, "Begrippen", res.Decks[1].Title)
	assert.Equal(t, "Economie", res.Decks[2].Title)
}

func TestImportFlashcardsExcel(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"Voorkant", "Achterkant"},
		{"mitose", "celdeling"},
		{"DNA", "erfelijk materiaal"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	cfg := DefaultImportConfig()
	cfg.DefaultDeck = "Biologie"
	res, err := ImportFlashcards("cards.xlsx", &buf, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Decks, 1)
	assert.Equal(t, "Biologie", res.Decks[0].Title)
	assert.Equal(t, "celdeling", res.Decks[0].Cards[0].Back)
}

func TestColumnToIndex(t *testing.T) {
	assert.Equal(t, 0, columnToIndex("A"))
	assert.Equal(t, 2, columnToIndex("c"))
	assert.Equal(t, 27, columnToIndex("AB"))
	assert.Equal(t, -1, columnToIndex("1"))
}
