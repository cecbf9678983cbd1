package report

import (
	"context"
	"testing"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
)

type mockGreptimeClient struct {
	table *table.Table
	calls int
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.calls++
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeWriter{client: m, table: DefaultGreptimeTable}

	if err := w.WriteBatch(Rows(sampleSnapshot())); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.calls != 1 || m.table == nil {
		t.Fatalf("expected a single write, got %d", m.calls)
	}

	rows := m.table.GetRows()
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	schema := rows.Schema
	if schema[0].ColumnName != "ship" || schema[0].SemanticType != gpb.SemanticType_TAG {
		t.Fatalf("ship column = %+v", schema[0])
	}
	last := schema[len(schema)-1]
	if last.ColumnName != "ts" || last.SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("ts column = %+v", last)
	}
	if got := rows.Rows[0].Values[0].GetStringValue(); got != "M1" {
		t.Fatalf("ship = %s, want M1", got)
	}
	if got := rows.Rows[0].Values[3].GetStringValue(); got != "mine" {
		t.Fatalf("task = %s, want mine", got)
	}
}

func TestGreptimeWriterSkipsEmpty(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeWriter{client: m, table: DefaultGreptimeTable}
	if err := w.WriteBatch(nil); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.calls != 0 {
		t.Fatalf("expected no write for an empty batch")
	}
}
