package shortlist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cv-screening/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	rankedSheet  = "Ranked Candidates"
)

var exportHeaders = []string{"Rank", "CV ID", "Name", "Score", "Nationality", "Experience (years)", "Qualification", "Gender", "Email", "Phone"}

// Export writes the short-list table as an xlsx workbook.
func (c *Controller) Export(w io.Writer) error {
	v := c.View()
	return WriteWorkbook(w, v.Rows, v.Parameters, v.Ranked, time.Now())
}

// WriteWorkbook renders rows into a two-sheet workbook: a summary of the
// ranking parameters and the table itself.
func WriteWorkbook(w io.Writer, rows []models.RankedResult, params Parameters, ranked bool, generated time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(rankedSheet); err != nil {
		return err
	}

	if err := writeSummary(f, rows, params, ranked, generated); err != nil {
		return fmt.Errorf("failed to write summary sheet: %w", err)
	}
	if err := writeRanked(f, rows); err != nil {
		return fmt.Errorf("failed to write ranked sheet: %w", err)
	}

	if idx, err := f.GetSheetIndex(rankedSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	return f.Write(w)
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

func writeSummary(f *excelize.File, rows []models.RankedResult, params Parameters, ranked bool, generated time.Time) error {
	if err := f.SetColWidth(summarySheet, "A", "A", 25); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 50); err != nil {
		return err
	}

	label, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	jobText := params.JobDescription
	if jobText == "" {
		jobText = models.JobTemplates[params.JobTemplate]
	}
	status := "Not ranked"
	if ranked {
		status = "Ranked"
	}

	entries := [][2]interface{}{
		{"CV Short List", ""},
		{"Generated:", generated.Format("2006-01-02 15:04:05")},
		{"Status:", status},
		{"Job Description:", jobText},
		{"Candidates:", len(rows)},
		{"Experience Weight:", params.Weights.Experience},
		{"Qualifications Weight:", params.Weights.Qualifications},
		{"Skills Weight:", params.Weights.Skills},
		{"Search Query:", params.SearchQuery},
		{"Search Operator:", strings.ToUpper(string(params.SearchOperator))},
	}
	for i, e := range entries {
		row := i + 1
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), e[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), e[1]); err != nil {
			return err
		}
		if err := f.SetCellStyle(summarySheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), label); err != nil {
			return err
		}
	}
	return nil
}

func writeRanked(f *excelize.File, rows []models.RankedResult) error {
	header, err := headerStyle(f)
	if err != nil {
		return err
	}

	widths := []float64{8, 12, 28, 10, 24, 18, 18, 10, 30, 18}
	for i, h := range exportHeaders {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		cell := col + "1"
		if err := f.SetCellValue(rankedSheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(rankedSheet, cell, cell, header); err != nil {
			return err
		}
		if err := f.SetColWidth(rankedSheet, col, col, widths[i]); err != nil {
			return err
		}
	}

	for i, r := range rows {
		values := []interface{}{
			rankCell(r.Rank),
			r.CvID,
			r.Name,
			r.Score,
			strings.Join(r.Nationality, ", "),
			r.YearsOfExperience,
			r.HighestDegree,
			r.Gender,
			r.Email,
			r.Phone,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(rankedSheet, cell, &values); err != nil {
			return err
		}
	}

	if len(rows) > 0 {
		if err := f.AutoFilter(rankedSheet, fmt.Sprintf("A1:J%d", len(rows)+1), []excelize.AutoFilterOptions{}); err != nil {
			return err
		}
	}

	return f.SetPanes(rankedSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// rankCell leaves the rank blank for unranked rows.
func rankCell(rank int) interface{} {
	if rank <= 0 {
		return ""
	}
	return rank
}
