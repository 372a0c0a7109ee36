package excel

import (
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/example/examprep/internal/leveling"
	"github.com/example/examprep/internal/spaced_repetition"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the progress report.
const (
	SheetOverview = "Overzicht"
	SheetMastery  = "Beheersing"
	SheetHistory  = "Voortgang"
	SheetMistakes = "Fouten"
)

// Report is what gets exported for one user.
type Report struct {
	UserID      string
	GeneratedAt time.Time
	Progress    *models.UserProgress
}

// ExportProgress writes the report as an xlsx workbook to w.
func ExportProgress(w io.Writer, r Report) error {
	if r.Progress == nil {
		return errors.New("no progress to export")
	}
	f, err := buildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "failed to write workbook")
	}
	return nil
}

func buildWorkbook(r Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetOverview); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to rename sheet")
	}
	for _, name := range []string{SheetMastery, SheetHistory, SheetMistakes} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to create sheet %s", name)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to create header style")
	}

	writers := []struct {
		sheet string
		rows  [][]any
	}{
		{SheetOverview, overviewRows(r)},
		{SheetMastery, masteryRows(r.Progress)},
		{SheetHistory, historyRows(r.Progress)},
		{SheetMistakes, mistakeRows(r.Progress)},
	}
	for _, sw := range writers {
		if err := writeRows(f, sw.sheet, sw.rows, header); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// writeRows writes rows starting at A1; the first row is the header.
func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrapf(err, "failed to write %s row %d", sheet, i+1)
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return errors.Wrapf(err, "failed to style %s header", sheet)
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 18)
}

func overviewRows(r Report) [][]any {
	p := r.Progress
	due := 0
	today := civil.DateOf(r.GeneratedAt)
	for _, sp := range p.PerSubjectData {
		due += len(spaced_repetition.DueQueue(sp.Mistakes, today))
	}
	pulse := "-"
	if p.GlobalPulseCheck != nil {
		pulse = fmt.Sprintf("%d-W%02d", p.GlobalPulseCheck.Year, p.GlobalPulseCheck.Week)
	}
	return [][]any{
		{"Veld", "Waarde"},
		{"Gebruiker", r.UserID},
		{"Gegenereerd", r.GeneratedAt.Format("2006-01-02 15:04")},
		{"Niveau", p.Level},
		{"XP", p.XP},
		{"Totale XP", leveling.TotalXP(p.XP, p.Level)},
		{"Reeks (dagen)", p.StudyStreak},
		{"Badges", len(p.EarnedBadges)},
		{"Abonnement", string(p.SubscriptionTier)},
		{"Hoofdvak", string(p.PrimarySubject)},
		{"Laatste check-in", pulse},
		{"Herhalingen open", due},
	}
}

func masteryRows(p *models.UserProgress) [][]any {
	rows := [][]any{{"Vak", "Vaardigheid", "Goed", "Totaal", "Percentage"}}
	for _, subject := range models.Subjects {
		sp, ok := p.PerSubjectData[subject]
		if !ok {
			continue
		}
		skills := make([]string, 0, len(sp.MasteryScores))
		for skill := range sp.MasteryScores {
			skills = append(skills, skill)
		}
		sort.Strings(skills)
		for _, skill := range skills {
			score := sp.MasteryScores[skill]
			rows = append(rows, []any{string(subject), skill, score.Correct, score.Total, round1(score.Percentage())})
		}
	}
	return rows
}

func historyRows(p *models.UserProgress) [][]any {
	rows := [][]any{{"Vak", "Datum", "Gemiddelde beheersing"}}
	for _, subject := range models.Subjects {
		sp, ok := p.PerSubjectData[subject]
		if !ok {
			continue
		}
		for _, point := range sp.ProgressHistory {
			rows = append(rows, []any{string(subject), point.Date.String(), round1(point.AvgMastery)})
		}
	}
	return rows
}

func mistakeRows(p *models.UserProgress) [][]any {
	rows := [][]any{{"Vak", "Vraag", "Jouw antwoord", "Niveau", "Volgende herhaling", "Feedback"}}
	for _, subject := range models.Subjects {
		sp, ok := p.PerSubjectData[subject]
		if !ok {
			continue
		}
		for _, m := range sp.Mistakes {
			rows = append(rows, []any{
				string(subject), m.QuestionID, m.UserAnswerText, m.RepetitionLevel,
				m.NextReviewDate.String(), m.AIFeedbackText,
			})
		}
	}
	return rows
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
