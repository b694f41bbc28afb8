// internal/tools/search.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crissins/admit-care/internal/common/errors"
	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/common/metrics"
	"github.com/crissins/admit-care/internal/search"
)

const SearchToolName = "search"

const searchToolDescription = "Search the knowledge base. The knowledge base is in English, translate to and from English if " +
	"needed. Results are formatted as a source name first in square brackets, followed by the text " +
	"content, and a line with '-----' at the end of each result."

const searchToolSchema = `{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Search query"
		}
	},
	"required": ["query"],
	"additionalProperties": false
}`

type searchArguments struct {
	Query string `json:"query"`
}

// Searcher is the retrieval backend contract the search tool binds to.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Document, error)
}

// NewSearchTool builds the retrieval tool descriptor. The handler may run
// any number of times per session; it has no side effects.
func NewSearchTool(backend Searcher, log logger.Logger) *Descriptor {
	return &Descriptor{
		Name:        SearchToolName,
		Description: searchToolDescription,
		Parameters:  json.RawMessage(searchToolSchema),
		Handler: func(ctx context.Context, arguments json.RawMessage) (*Result, error) {
			started := time.Now()

			var args searchArguments
			if err := json.Unmarshal(arguments, &args); err != nil {
				return nil, errors.NewSearchQueryFailedError(fmt.Errorf("parse arguments: %w", err))
			}

			docs, err := backend.Search(ctx, args.Query)
			if err != nil {
				metrics.ToolCallsTotal.WithLabelValues(SearchToolName, "error").Inc()
				return nil, err
			}

			metrics.ToolCallsTotal.WithLabelValues(SearchToolName, "ok").Inc()
			metrics.ToolCallDuration.WithLabelValues(SearchToolName).Observe(time.Since(started).Seconds())

			log.Debug("search tool completed", map[string]interface{}{
				"query": args.Query,
				"hits":  len(docs),
			})
			return &Result{Body: formatResults(docs)}, nil
		},
	}
}

// formatResults renders hits the way the tool description promises. An empty
// hit list renders as an empty string, which the model treats as "nothing
// found".
func formatResults(docs []search.Document) string {
	var b strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&b, "[%s]: %s\n-----\n", doc.ID, doc.Content)
	}
	return b.String()
}
