package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

// ElasticAudit indexes each event as a document of the audit index.
type ElasticAudit struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
}

func NewElasticAudit(url, username, password, index string) (*ElasticAudit, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticAudit{client: client, index: index, timeout: 3 * time.Second}, nil
}

func (a *ElasticAudit) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("elasticsearch: json.Marshal failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.client.Index(
		a.index,
		bytes.NewReader(body),
		a.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: index %s: %w", e.Type, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return fmt.Errorf("elasticsearch: index %s: %s: %s", e.Type, res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}

func (a *ElasticAudit) Close() error { return nil }
