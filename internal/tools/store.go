// internal/tools/store.go
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/common/metrics"
	"github.com/crissins/admit-care/internal/intake"
	"github.com/crissins/admit-care/internal/models"
)

const StoreToolName = "store"

const storeToolDescription = "Store the completed patient intake record. Call this exactly once, at the end of the " +
	"conversation, with the full intake JSON in the agreed format. Unknown answers must be \"N/A\", " +
	"never omitted."

const storeToolSchema = `{
	"type": "object",
	"properties": {
		"record": {
			"type": "object",
			"description": "The completed intake record following the agreed JSON format"
		}
	},
	"required": ["record"],
	"additionalProperties": false
}`

type storeArguments struct {
	Record json.RawMessage `json:"record"`
}

// Notifier alerts staff that a new admission has arrived. Failures are
// logged, not surfaced: the record is already persisted.
type Notifier interface {
	AdmissionStored(ctx context.Context, record *models.IntakeRecord)
}

// NewStoreTool builds the structured-output tool descriptor. The handler is
// stateless; once-per-session enforcement lives in the session dispatcher.
func NewStoreTool(sink intake.Sink, notifier Notifier, log logger.Logger) *Descriptor {
	return &Descriptor{
		Name:        StoreToolName,
		Description: storeToolDescription,
		Parameters:  json.RawMessage(storeToolSchema),
		Handler: func(ctx context.Context, arguments json.RawMessage) (*Result, error) {
			started := time.Now()

			raw := extractRecord(arguments)

			record, err := intake.Validate(raw)
			if err != nil {
				metrics.ToolCallsTotal.WithLabelValues(StoreToolName, "invalid").Inc()
				return nil, err
			}

			intake.Finalize(record, time.Now())

			if err := sink.Store(ctx, record, raw); err != nil {
				metrics.ToolCallsTotal.WithLabelValues(StoreToolName, "error").Inc()
				return nil, err
			}

			if notifier != nil {
				notifier.AdmissionStored(ctx, record)
			}

			metrics.ToolCallsTotal.WithLabelValues(StoreToolName, "ok").Inc()
			metrics.ToolCallDuration.WithLabelValues(StoreToolName).Observe(time.Since(started).Seconds())

			log.Info("intake record stored", map[string]interface{}{
				"admission_id": record.AdmissionID,
			})

			ack, _ := json.Marshal(map[string]interface{}{
				"status":      "stored",
				"admissionId": record.AdmissionID,
			})
			return &Result{Body: string(ack), ObjectiveComplete: true}, nil
		},
	}
}

// extractRecord accepts both argument shapes the model produces: the record
// wrapped under a "record" key, or the record itself as the argument object.
func extractRecord(arguments json.RawMessage) json.RawMessage {
	var args storeArguments
	if err := json.Unmarshal(arguments, &args); err == nil && len(args.Record) > 0 && string(args.Record) != "null" {
		return args.Record
	}
	return arguments
}
