package report

import (
	"context"
	"fmt"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// DefaultGreptimeTable is the table status rows go to.
const DefaultGreptimeTable = "fleet_status"

const defaultGreptimePort = 4001

// greptimeClient is the part of the ingester client the writer uses.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter writes status rows to GreptimeDB over gRPC. The table is
// created by the server on first write.
type GreptimeWriter struct {
	client greptimeClient
	table  string
}

// NewGreptimeWriter connects to endpoint ("host" or "host:port").
func NewGreptimeWriter(endpoint, database, tableName string) (*GreptimeWriter, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: bad port", endpoint)
		}
		host, port = h, n
	}
	if tableName == "" {
		tableName = DefaultGreptimeTable
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeWriter{client: client, table: tableName}, nil
}

// Write inserts a single row.
func (w *GreptimeWriter) Write(row Row) error {
	return w.WriteBatch([]Row{row})
}

// WriteBatch inserts the rows of one tick.
func (w *GreptimeWriter) WriteBatch(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := w.build(rows)
	if err != nil {
		return err
	}
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	return nil
}

func (w *GreptimeWriter) build(rows []Row) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	cols := []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"ship", true, types.STRING},
		{"system", true, types.STRING},
		{"state", false, types.STRING},
		{"task", false, types.STRING},
		{"goal", false, types.STRING},
		{"capabilities", false, types.STRING},
		{"location", false, types.STRING},
		{"nav_status", false, types.STRING},
		{"weight", false, types.FLOAT64},
		{"contribution", false, types.FLOAT64},
		{"income", false, types.FLOAT64},
		{"efficiency", false, types.FLOAT64},
		{"fuel", false, types.INT64},
		{"fuel_capacity", false, types.INT64},
		{"cargo", false, types.INT64},
		{"cargo_capacity", false, types.INT64},
		{"cooldown_seconds", false, types.FLOAT64},
		{"last_error", false, types.STRING},
		{"tick", false, types.INT64},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, r := range rows {
		err := tbl.AddRow(
			r.Ship, r.System, r.State, r.Task, r.Goal, r.Capabilities, r.Location, r.NavStatus,
			r.Weight, r.Contribution, r.Income, r.Efficiency,
			int64(r.Fuel), int64(r.FuelCapacity), int64(r.Cargo), int64(r.CargoCapacity),
			r.CooldownSeconds, r.LastError, int64(r.Tick),
			r.Timestamp,
		)
		if err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
