package eventlog

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// nativeSession adapts a clickhouse-go connection to session.
type nativeSession struct {
	conn driver.Conn
}

func (s *nativeSession) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *nativeSession) SendBatch(ctx context.Context, query string, rows [][]any) error {
	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("%w: %w", errRowRejected, err)
		}
	}

	return batch.Send()
}

func (s *nativeSession) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	columnTypes := rows.ColumnTypes()
	result := make([][]any, 0)

	for rows.Next() {
		dest := make([]any, len(columnTypes))
		for i, ct := range columnTypes {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make([]any, len(dest))
		for i, d := range dest {
			row[i] = reflect.ValueOf(d).Elem().Interface()
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *nativeSession) Exec(ctx context.Context, query string, args ...any) error {
	return s.conn.Exec(ctx, query, args...)
}

func (s *nativeSession) Close() error {
	return s.conn.Close()
}
