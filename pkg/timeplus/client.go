// Package timeplus implements the engine's persistence boundary on Timeplus
// streams: rule definitions and triggered alerts live in mutable streams,
// market quotes and the catalog index are read from append streams.
package timeplus

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timeplus-io/proton-go-driver/v2"
	"github.com/timeplus-io/proton-go-driver/v2/lib/driver"
)

// Column is one column of a stream schema.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Client wraps the proton driver connection. It exposes only the operations
// the stores need; everything else stays behind this boundary.
type Client interface {
	ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error)
	ExecuteDDL(ctx context.Context, query string) error
	InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error
	StreamExists(ctx context.Context, name string) (bool, error)
	Close() error
}

// ConnConfig holds the Timeplus connection settings.
type ConnConfig struct {
	Address   string
	Username  string
	Password  string
	Workspace string
}

type client struct {
	conn driver.Conn
}

var _ Client = (*client)(nil)

// NewClient connects to Timeplus and verifies the connection.
func NewClient(cfg ConnConfig) (Client, error) {
	address := strings.TrimPrefix(strings.TrimPrefix(cfg.Address, "http://"), "https://")
	if !strings.Contains(address, ":") {
		address += ":8464" // default native port
	}
	logrus.Infof("Connecting to Timeplus at %s (workspace: %s)", address, cfg.Workspace)

	conn, err := proton.Open(&proton.Options{
		Addr: []string{address},
		Auth: proton.Auth{
			Database: cfg.Workspace,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		Compression: &proton.Compression{
			Method: proton.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to Timeplus: %w", err)
	}

	var pingErr error
	for i := 0; i < 5; i++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = conn.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			break
		}
		logrus.Warnf("Failed to ping Timeplus (attempt %d/5): %v", i+1, pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping Timeplus after multiple attempts: %w", pingErr)
	}

	logrus.Info("Connected to Timeplus")
	return &client{conn: conn}, nil
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *client) ExecuteDDL(ctx context.Context, query string) error {
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to execute DDL: %w", err)
	}
	return nil
}

func (c *client) StreamExists(ctx context.Context, name string) (bool, error) {
	escaped := strings.ReplaceAll(name, "'", "''")
	rows, err := c.conn.Query(ctx, fmt.Sprintf("SHOW STREAMS LIKE '%s'", escaped))
	if err != nil {
		return false, fmt.Errorf("failed to execute SHOW STREAMS: %w", err)
	}
	defer rows.Close()
	exists := rows.Next()
	if rows.Err() != nil {
		return false, fmt.Errorf("error checking rows from SHOW STREAMS: %w", rows.Err())
	}
	return exists, nil
}

// ExecuteQuery runs a bounded query and materializes the rows as maps.
func (c *client) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows, err := c.conn.Query(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames := rows.Columns()
	columnTypes := rows.ColumnTypes()

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		scanArgs := make([]interface{}, len(columnNames))
		for i, ct := range columnTypes {
			scanArgs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rowMap := make(map[string]interface{}, len(columnNames))
		for i, name := range columnNames {
			rowMap[name] = reflect.ValueOf(scanArgs[i]).Elem().Interface()
		}
		result = append(result, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// InsertIntoStream writes one row. Values are formatted into the statement;
// strings are escaped, times use the Timeplus datetime format.
func (c *client) InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error {
	formatted := make([]string, len(values))
	for i, val := range values {
		formatted[i] = formatValue(val)
	}
	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		streamName, strings.Join(columns, ", "), strings.Join(formatted, ", "))

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			logrus.Warnf("Retrying insert into %s (attempt %d/3) after error: %v", streamName, attempt+1, lastErr)
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
		if err := c.conn.Exec(ctx, query); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("failed to insert into stream %s: %w", streamName, lastErr)
}

func formatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
	case time.Time:
		return fmt.Sprintf("'%s'", v.UTC().Format("2006-01-02 15:04:05.000"))
	case *time.Time:
		if v == nil {
			return "null"
		}
		return formatValue(*v)
	case bool:
		return fmt.Sprintf("%t", v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%f", v)
	default:
		return fmt.Sprintf("'%v'", v)
	}
}
