package report

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tabletime/bookingd/internal/models"
)

type fakeLister struct {
	appts []models.Appointment
	err   error
}

func (f *fakeLister) AppointmentsByDateRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	return f.appts, f.err
}

func TestExport(t *testing.T) {
	created := time.Date(2025, 9, 20, 14, 30, 0, 0, time.UTC)
	lister := &fakeLister{appts: []models.Appointment{
		{
			ReferenceNumber: "TT0922-AB12",
			Date:            "2025-09-22",
			StartTime:       "10:00",
			EndTime:         "11:00",
			RestaurantName:  "Basil & Thyme",
			Status:          models.StatusConfirmed,
			CreatedAt:       created,
		},
		{
			ReferenceNumber: "TT0923-CD34",
			Date:            "2025-09-23",
			StartTime:       "12:00",
			EndTime:         "13:00",
			RestaurantName:  "Juniper Table",
			Status:          models.StatusCancelled,
			CreatedAt:       created,
		},
	}}

	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "appointments.xlsx")

	rows, err := NewExporter(lister, &logger).Export(context.Background(), "2025-09-22", "2025-09-23", path)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	file, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer file.Close()

	header, err := file.GetCellValue("Appointments", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Reference", header)

	ref, err := file.GetCellValue("Appointments", "A2")
	require.NoError(t, err)
	assert.Equal(t, "TT0922-AB12", ref)

	status, err := file.GetCellValue("Appointments", "F3")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", status)

	createdCell, err := file.GetCellValue("Appointments", "G2")
	require.NoError(t, err)
	assert.Equal(t, "2025-09-20 14:30:00", createdCell)
}

func TestExportEmptyRange(t *testing.T) {
	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "empty.xlsx")

	rows, err := NewExporter(&fakeLister{}, &logger).Export(context.Background(), "2025-09-22", "2025-09-23", path)
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.FileExists(t, path)
}

func TestExportListerError(t *testing.T) {
	logger := zerolog.New(io.Discard)
	lister := &fakeLister{err: errors.New("store offline")}

	_, err := NewExporter(lister, &logger).Export(context.Background(), "2025-09-22", "2025-09-23", filepath.Join(t.TempDir(), "x.xlsx"))
	assert.ErrorContains(t, err, "store offline")
}
