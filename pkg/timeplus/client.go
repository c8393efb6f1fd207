package timeplus

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	proton "github.com/timeplus-io/proton-go-driver/v2"
	"github.com/timeplus-io/proton-go-driver/v2/lib/driver"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/config"
)

// Column represents a column definition
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Client is a wrapper around the Timeplus Proton Go driver connection
type Client struct {
	conn driver.Conn
	opts *proton.Options
}

// NewClient connects to Timeplus and verifies the connection with a ping.
func NewClient(cfg *config.TimeplusConfig) (*Client, error) {
	logrus.Infof("Connecting to Timeplus at %s (workspace: %s)", cfg.Address, cfg.Workspace)

	address := strings.TrimPrefix(cfg.Address, "http://")
	address = strings.TrimPrefix(address, "https://")
	if !strings.Contains(address, ":") {
		address += ":8464" // default native port
	}

	opts := &proton.Options{
		Addr: []string{address},
		Auth: proton.Auth{
			Database: cfg.Workspace,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 2 * time.Hour,
		Compression: &proton.Compression{
			Method: proton.CompressionLZ4,
		},
	}

	conn, err := proton.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to Timeplus: %w", err)
	}

	var pingErr error
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pingErr = conn.Ping(ctx)
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

	logrus.Info("Successfully connected to Timeplus")
	return &Client{conn: conn, opts: opts}, nil
}

// CreateStream creates an append-only stream with the given schema
func (c *Client) CreateStream(ctx context.Context, name string, schema []Column) error {
	query := fmt.Sprintf("CREATE STREAM IF NOT EXISTS `%s` (%s)", name, columnsDDL(schema))
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", name, err)
	}
	return nil
}

// CreateMutableStream creates a mutable stream keyed by the given
// primary key columns. Upserts by primary key give the engine its
// conditional lifecycle transitions.
func (c *Client) CreateMutableStream(ctx context.Context, name string, schema []Column, primaryKeys []string) error {
	exists, err := c.StreamExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check if stream exists: %w", err)
	}
	if exists {
		logrus.Infof("Stream %s already exists", name)
		return nil
	}

	query := fmt.Sprintf("CREATE MUTABLE STREAM `%s` (%s) PRIMARY KEY (%s)",
		name, columnsDDL(schema), strings.Join(primaryKeys, ", "))
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create mutable stream '%s': %w", name, err)
	}

	logrus.Infof("Created mutable stream %s", name)
	return nil
}

// StreamExists checks if a stream exists
func (c *Client) StreamExists(ctx context.Context, name string) (bool, error) {
	escapedName := strings.ReplaceAll(name, "'", "''")
	rows, err := c.conn.Query(ctx, fmt.Sprintf("SHOW STREAMS LIKE '%s'", escapedName))
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

// DeleteStream drops a stream if it exists
func (c *Client) DeleteStream(ctx context.Context, name string) error {
	exists, err := c.StreamExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := c.conn.Exec(ctx, fmt.Sprintf("DROP STREAM `%s`", name)); err != nil {
		return fmt.Errorf("failed to delete stream '%s': %w", name, err)
	}
	return nil
}

// ListStreams returns the names of all streams in the workspace
func (c *Client) ListStreams(ctx context.Context) ([]string, error) {
	results, err := c.ExecuteQuery(ctx, "SHOW STREAMS")
	if err != nil {
		return nil, err
	}
	streams := make([]string, 0, len(results))
	for _, row := range results {
		if name, ok := row["name"].(string); ok {
			streams = append(streams, name)
		}
	}
	return streams, nil
}

// ExecuteQuery executes a query and returns the result rows. EOF errors
// trigger a reconnect and a bounded retry with backoff.
func (c *Client) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	const maxRetries = 5
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			logrus.Warnf("Retrying query execution (attempt %d/%d) after error: %v", attempt+1, maxRetries, lastErr)
			if lastErr != nil && strings.Contains(lastErr.Error(), "EOF") {
				reconnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				if err := c.reconnect(reconnCtx); err != nil {
					logrus.Errorf("Failed to reconnect: %v", err)
				}
				cancel()
			}
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			time.Sleep(backoff)
		}

		queryCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		rows, err := c.conn.Query(queryCtx, query)
		if err != nil {
			cancel()
			lastErr = err
			if strings.Contains(err.Error(), "EOF") {
				logrus.Warnf("EOF error during query execution, will retry: %v", err)
				continue
			}
			logrus.Errorf("Error executing query: %v", err)
			continue
		}

		result, err := scanRows(rows)
		rows.Close()
		cancel()
		if err != nil {
			lastErr = err
			if strings.Contains(err.Error(), "EOF") {
				continue
			}
			return nil, err
		}
		return result, nil
	}

	return nil, fmt.Errorf("failed to execute query after %d attempts: %w", maxRetries, lastErr)
}

// scanRows drains a result set into generic row maps
func scanRows(rows driver.Rows) ([]map[string]interface{}, error) {
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

// InsertIntoStream inserts a row into a stream. For mutable streams an
// insert with an existing primary key replaces the stored row.
func (c *Client) InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error {
	const maxRetries = 5
	var lastErr error

	formattedValues := make([]string, len(values))
	for i, val := range values {
		formattedValues[i] = formatValue(val)
	}
	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		streamName, strings.Join(columns, ", "), strings.Join(formattedValues, ", "))

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			logrus.Warnf("Retrying insertion to stream '%s' (attempt %d/%d) after error: %v",
				streamName, attempt+1, maxRetries, lastErr)
			if lastErr != nil && strings.Contains(lastErr.Error(), "EOF") {
				reconnCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				if err := c.reconnect(reconnCtx); err != nil {
					logrus.Errorf("Failed to reconnect: %v", err)
				}
				cancel()
			}
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			time.Sleep(backoff)
		}

		if err := c.conn.Exec(ctx, query); err == nil {
			return nil
		} else {
			lastErr = err
			logrus.Warnf("Insert failed (attempt %d/%d): %v", attempt+1, maxRetries, err)
		}
	}

	return fmt.Errorf("failed to insert into stream after %d attempts: %w", maxRetries, lastErr)
}

// formatValue renders a Go value as a Timeplus SQL literal
func formatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
	case time.Time:
		return fmt.Sprintf("'%s'", v.Format("2006-01-02 15:04:05.000"))
	case *time.Time:
		if v == nil {
			return "null"
		}
		return fmt.Sprintf("'%s'", v.Format("2006-01-02 15:04:05.000"))
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

// ExecuteDDL executes a DDL statement like CREATE or DROP
func (c *Client) ExecuteDDL(ctx context.Context, query string) error {
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to execute DDL query '%s': %w", query, err)
	}
	return nil
}

// reconnect reestablishes the connection with exponential backoff
func (c *Client) reconnect(ctx context.Context) error {
	logrus.Info("Attempting to reconnect to Timeplus...")

	if c.conn != nil {
		c.conn.Close()
	}

	const maxRetries = 5
	var err error
	for i := 0; i < maxRetries; i++ {
		delay := time.Duration(1<<uint(i)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		logrus.Infof("Reconnection attempt %d/%d (delay: %v)...", i+1, maxRetries, delay)
		time.Sleep(delay)

		var conn driver.Conn
		conn, err = proton.Open(c.opts)
		if err != nil {
			logrus.Warnf("Failed to reconnect: %v", err)
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := conn.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			c.conn = conn
			logrus.Info("Successfully reconnected to Timeplus")
			return nil
		}
		logrus.Warnf("Connection established but ping failed: %v", pingErr)
		conn.Close()
		err = pingErr
	}

	return fmt.Errorf("failed to reconnect after %d attempts: %w", maxRetries, err)
}

// Close tears down the underlying connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func columnsDDL(schema []Column) string {
	fields := make([]string, len(schema))
	for i, col := range schema {
		nullable := ""
		if col.Nullable {
			nullable = " NULL"
		}
		fields[i] = fmt.Sprintf("`%s` %s%s", col.Name, col.Type, nullable)
	}
	return strings.Join(fields, ", ")
}
