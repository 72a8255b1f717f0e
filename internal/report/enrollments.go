// Package report renders admin exports as xlsx workbooks
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/xuri/excelize/v2"
)

// EnrollmentSheet is the name of the single sheet in the export
const EnrollmentSheet = "Enrollments"

// EnrollmentHeader lists the export columns in order
var EnrollmentHeader = []string{
	"Enrollment ID",
	"Student",
	"Email",
	"Course",
	"Status",
	"Progress (%)",
	"Chapters",
	"Time Spent (min)",
	"Enrolled At",
	"Completed At",
	"Expires At",
	"Certificate",
}

var columnWidths = []float64{14, 25, 30, 35, 12, 13, 12, 16, 20, 20, 20, 22}

const timeLayout = "2006-01-02 15:04"

// Enrollments writes one row per enrollment. User and Course should be
// preloaded; missing relations leave their cells empty.
func Enrollments(enrollments []model.Enrollment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(EnrollmentSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(EnrollmentHeader))
	for i, h := range EnrollmentHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(EnrollmentSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(EnrollmentHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(EnrollmentSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(EnrollmentSheet, col, col, width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i := range enrollments {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := enrollmentRow(&enrollments[i])
		if err := f.SetSheetRow(EnrollmentSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(EnrollmentSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func enrollmentRow(e *model.Enrollment) []interface{} {
	var student, email, course, certificate string
	if e.User != nil {
		student, email = e.User.Name, e.User.Email
	}
	if e.Course != nil {
		course = e.Course.Title
	}
	if e.Certificate != nil {
		certificate = e.Certificate.CertificateNumber
	}
	return []interface{}{
		e.ID,
		student,
		email,
		course,
		string(e.Status),
		e.ProgressPercentage,
		fmt.Sprintf("%d/%d", e.CompletedChapters, e.TotalChapters),
		e.TimeSpentMinutes,
		e.EnrolledAt.Format(timeLayout),
		formatTime(e.CompletedAt),
		formatTime(e.ExpiresAt),
		certificate,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

// Filename names an export taken at now
func Filename(now time.Time) string {
	return fmt.Sprintf("enrollments-%s.xlsx", now.Format("20060102-150405"))
}
