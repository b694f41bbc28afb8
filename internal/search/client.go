// internal/search/client.go
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/crissins/admit-care/internal/common/auth"
	"github.com/crissins/admit-care/internal/common/config"
	"github.com/crissins/admit-care/internal/common/errors"
	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/common/metrics"
)

// Document is one knowledge-base hit returned to the tool layer. Embedding
// is populated only when the backend includes the vector in its source.
type Document struct {
	ID        string
	Title     string
	Content   string
	Embedding []float32
}

// Client queries the knowledge-base index used to ground the assistant's
// answers.
type Client struct {
	es      *elasticsearch.Client
	cfg     config.SearchConfig
	timeout time.Duration
	logger  logger.Logger
}

// credTransport applies the resolved endpoint credential to every request.
// The credential may refresh tokens between requests, so it is asked each
// time rather than captured once.
type credTransport struct {
	base http.RoundTripper
	cred auth.Credential
}

func (t *credTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.cred != nil {
		if err := t.cred.Apply(req.Context(), req.Header); err != nil {
			return nil, fmt.Errorf("apply search credential: %w", err)
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewClient builds a search client for the configured endpoint. The
// credential comes from the resolver: a static key or the shared federated
// credential.
func NewClient(cfg config.SearchConfig, cred auth.Credential, log logger.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Endpoint},
		Transport: &credTransport{cred: cred},
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		es:      es,
		cfg:     cfg,
		timeout: timeout,
		logger:  log.With(map[string]interface{}{"component": "search"}),
	}, nil
}

// Search runs a hybrid query against the knowledge-base index. An empty
// result set is a valid answer, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]Document, error) {
	body, err := c.buildQuery(query)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	size := c.cfg.MaxResults
	if size <= 0 {
		size = 5
	}

	req := esapi.SearchRequest{
		Index: []string{c.cfg.Index},
		Body:  strings.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, errors.NewSearchUnavailableError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewSearchQueryFailedError(fmt.Errorf("search query failed: %s", res.Status()))
	}

	docs, err := c.parseHits(res)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError(err)
	}

	metrics.SearchDocumentsReturned.Observe(float64(len(docs)))
	c.logger.Debug("knowledge base query completed", map[string]interface{}{
		"query": query,
		"hits":  len(docs),
	})
	return docs, nil
}

func (c *Client) buildQuery(query string) (string, error) {
	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				c.cfg.ContentField: map[string]interface{}{
					"query": query,
				},
			},
		},
		"_source": []string{c.cfg.IdentifierField, c.cfg.ContentField, c.cfg.TitleField},
	}

	if c.cfg.UseVectorQuery {
		queryBody["knn"] = map[string]interface{}{
			"field": c.cfg.EmbeddingField,
			"query_vector_builder": map[string]interface{}{
				"text_embedding": map[string]interface{}{
					"model_id":   c.cfg.SemanticConfiguration,
					"model_text": query,
				},
			},
		}
		queryBody["rank"] = map[string]interface{}{
			"rrf": map[string]interface{}{},
		}
	}

	body, err := json.Marshal(queryBody)
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	return string(body), nil
}

func (c *Client) parseHits(res *esapi.Response) ([]Document, error) {
	var r map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := []Document{}
	hitsWrapper, ok := r["hits"].(map[string]interface{})
	if !ok {
		return docs, nil
	}
	hits, ok := hitsWrapper["hits"].([]interface{})
	if !ok {
		return docs, nil
	}

	for _, hit := range hits {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		docs = append(docs, Document{
			ID:        stringField(source, c.cfg.IdentifierField),
			Title:     stringField(source, c.cfg.TitleField),
			Content:   stringField(source, c.cfg.ContentField),
			Embedding: vectorField(source, c.cfg.EmbeddingField),
		})
	}
	return docs, nil
}

func stringField(source map[string]interface{}, field string) string {
	if v, ok := source[field].(string); ok {
		return v
	}
	return ""
}

func vectorField(source map[string]interface{}, field string) []float32 {
	raw, ok := source[field].([]interface{})
	if !ok {
		return nil
	}
	vec := make([]float32, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		vec = append(vec, float32(f))
	}
	return vec
}
