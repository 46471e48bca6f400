package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticSink indexes audit events for the external observability tooling.
type ElasticSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticSink(client *elasticsearch.Client, index string) *ElasticSink {
	if index == "" {
		index = "loanflow-audit"
	}
	return &ElasticSink{client: client, index: index}
}

func (s *ElasticSink) Index(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(payload),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index audit event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index audit event: %s", res.Status())
	}
	return nil
}
