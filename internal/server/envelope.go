package server

import (
	"time"

	"github.com/chatdb/chatdb/internal/query"
)

// Cell type codes carried in envelope cells.
const (
	cellNull    = 0
	cellInteger = 1
	cellFloat   = 2
	cellText    = 3
	cellBinary  = 4
)

// envelopeCell wraps one value with its column name and type code. Clients
// unwrap Value.
type envelopeCell struct {
	Name  string `json:"Name"`
	Type  int    `json:"Type"`
	Value any    `json:"Value"`
}

// envelopeTable lays a result out as a header row of column names followed by
// one row of envelope cells per result row.
func envelopeTable(result query.Result) [][]any {
	table := make([][]any, 0, len(result.Rows)+1)
	header := make([]any, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = column
	}
	table = append(table, header)

	for _, row := range result.Rows {
		cells := make([]any, len(row))
		for i, value := range row {
			name := ""
			if i < len(result.Columns) {
				name = result.Columns[i]
			}
			cells[i] = encodeCell(name, value)
		}
		table = append(table, cells)
	}
	return table
}

func encodeCell(name string, value any) envelopeCell {
	cell := envelopeCell{Name: name, Value: value}
	switch typed := value.(type) {
	case nil:
		cell.Type = cellNull
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		cell.Type = cellInteger
	case float32, float64:
		cell.Type = cellFloat
	case []byte:
		cell.Type = cellBinary
	case time.Time:
		cell.Type = cellText
		cell.Value = typed.UTC().Format(time.RFC3339Nano)
	default:
		cell.Type = cellText
	}
	return cell
}
