package demo

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

func EncodeOrdersParquet(orders []Order) ([]byte, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("orders are required")
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Order](buf)
	if _, err := writer.Write(orders); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
