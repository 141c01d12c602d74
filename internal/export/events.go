// internal/export/events.go
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/sua-org/nursecall-bus/internal/store"
)

const sheetName = "Events"

var EventsHeader = []string{
	"ID",
	"System Time",
	"Device Time",
	"Event",
	"Status",
	"Floor",
	"Ward",
	"Room",
	"Bed",
	"Room Identifier",
	"Device",
	"Call Session",
	"Raw",
}

var columnWidths = []float64{8, 20, 20, 16, 10, 14, 14, 16, 14, 22, 16, 12, 40}

// EventsWorkbook gera o xlsx do histórico. events deve vir com Room
// (Ward/Floor) e Bed carregados.
func EventsWorkbook(events []store.Event) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")
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

	if err := f.SetSheetRow(sheetName, "A1", &EventsHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(EventsHeader), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i := range events {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := eventRow(&events[i])
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func eventRow(e *store.Event) []interface{} {
	var floor, ward, room, bed string
	if r := e.Room; r != nil {
		room = r.DisplayName()
		if w := r.Ward; w != nil {
			ward = w.Name
			if fl := w.Floor; fl != nil {
				floor = fl.Name
			}
		}
	}
	if b := e.Bed; b != nil {
		bed = b.BedName
		if bed == "" {
			bed = b.BedNumber
		}
	}
	var sessionID interface{} = ""
	if e.CallSessionID != nil {
		sessionID = *e.CallSessionID
	}
	return []interface{}{
		e.ID,
		e.SystemTimestamp.Format("2006-01-02 15:04:05"),
		e.DeviceTimestamp,
		e.EventType,
		e.Status,
		floor,
		ward,
		room,
		bed,
		e.RoomIdentifier,
		e.DeviceType,
		sessionID,
		e.RawHex,
	}
}
