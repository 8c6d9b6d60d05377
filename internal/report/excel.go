// Package report writes appointment listings to Excel workbooks for
// operational review.
package report

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/tabletime/bookingd/internal/models"
)

// AppointmentLister is the slice of the coordinator the exporter needs.
type AppointmentLister interface {
	AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error)
}

// Exporter renders appointments into a workbook.
type Exporter struct {
	lister AppointmentLister
	logger *zerolog.Logger
}

func NewExporter(lister AppointmentLister, logger *zerolog.Logger) *Exporter {
	return &Exporter{lister: lister, logger: logger}
}

var columns = []string{
	"Reference", "Date", "Start", "End", "Restaurant", "Status", "Created",
}

// Export writes all appointments in the inclusive date range to an
// .xlsx file at path.
func (e *Exporter) Export(ctx context.Context, from, to, path string) (int, error) {
	appts, err := e.lister.AppointmentsByDateRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list appointments: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Appointments"
	file.SetSheetName("Sheet1", sheet)

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return 0, err
		}
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return 0, err
		}
	}

	if style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = file.SetCellStyle(sheet, startCell, endCell, style)
	}

	for row, appt := range appts {
		values := []any{
			appt.ReferenceNumber,
			appt.Date,
			appt.StartTime,
			appt.EndTime,
			appt.RestaurantName,
			string(appt.Status),
			appt.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return 0, err
			}
			if err := file.SetCellValue(sheet, cell, value); err != nil {
				return 0, err
			}
		}
	}

	if err := file.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}

	e.logger.Info().Str("path", path).Int("rows", len(appts)).Msg("appointments exported")
	return len(appts), nil
}
