// Package bigquery wraps the analytics dataset used by the analytics worker.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errDatasetRequired   = errors.New("bigquery dataset is required")
	errTableRequired     = errors.New("bigquery table name is required")
	errNotInitialized    = errors.New("bigquery client not initialized")
)

// Client is a dataset-scoped BigQuery handle.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
}

// NewClient connects to the configured dataset. Unless AutoCreate is set the
// dataset and every configured table must already exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	tables := configuredTables(cfg)
	if len(tables) == 0 {
		return nil, errTableRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(datasetID), tables: tables}

	if !cfg.AutoCreate {
		if err := c.Ping(ctx); err != nil {
			_ = bq.Close()
			return nil, err
		}
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": projectID, "dataset": datasetID}), "bigquery client ready")
	}
	return c, nil
}

// clientOptions prefers inline credentials JSON over a credentials file; with
// neither the client falls back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func configuredTables(cfg config.BigQueryConfig) []string {
	var tables []string
	if name := strings.TrimSpace(cfg.TableEventsTable); name != "" {
		tables = append(tables, name)
	}
	return tables
}

// Ping checks that the dataset and configured tables are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe(err, "dataset", c.dataset.DatasetID)
	}
	for _, name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return describe(err, "table", name)
		}
	}
	return nil
}

// EnsureTable creates the dataset and a day-partitioned table when they are
// missing. partitionField may be empty for an unpartitioned table.
func (c *Client) EnsureTable(ctx context.Context, name string, schema bigquery.Schema, partitionField string) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	if name = strings.TrimSpace(name); name == "" {
		return errTableRequired
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if err := c.dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !alreadyExists(err) {
		return fmt.Errorf("create dataset %q: %w", c.dataset.DatasetID, err)
	}
	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField}
	}
	if err := c.dataset.Table(name).Create(ctx, meta); err != nil && !alreadyExists(err) {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	return nil
}

// InsertRows streams rows into table.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	if table = strings.TrimSpace(table); table == "" {
		return errTableRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func describe(err error, kind, name string) error {
	if apiCode(err) == http.StatusNotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("check %s %q: %w", kind, name, err)
}

func alreadyExists(err error) bool {
	return apiCode(err) == http.StatusConflict
}

func apiCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
