// internal/intake/validate.go
package intake

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/crissins/admit-care/internal/common/errors"
	"github.com/crissins/admit-care/internal/models"
)

// recordSchema is the structural contract a store payload must satisfy.
// Field-level questions may be "N/A"; the top-level groups may not be absent.
const recordSchema = `{
  "type": "object",
  "required": ["PII", "PHI", "contextual_information", "metadata"],
  "properties": {
    "admissionId": {"type": "string"},
    "PII": {
      "type": "object",
      "required": ["name", "date_of_birth", "contact_info", "address"],
      "properties": {
        "name": {"type": "string"},
        "date_of_birth": {"type": "string"},
        "contact_info": {
          "type": "object",
          "required": ["phone", "email"],
          "properties": {
            "phone": {"type": "string"},
            "email": {"type": "string"}
          }
        },
        "address": {"type": "string"}
      }
    },
    "PHI": {
      "type": "object",
      "required": ["pregnant", "symptoms", "medical_conditions", "medications", "mental_health", "substance_use", "numbness_or_tingling"],
      "properties": {
        "symptoms": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "properties": {
              "has_symptom": {"type": "string"},
              "description": {"type": "string"},
              "severity": {"type": ["string", "number"]},
              "frequency": {"type": "string"},
              "days_ago_started": {"type": ["string", "number"]}
            }
          }
        },
        "medications": {"type": "array"}
      }
    },
    "contextual_information": {
      "type": "object",
      "required": ["language_preference", "visit_type", "referral_source"]
    },
    "metadata": {"type": "object"}
  }
}`

// requiredGroups drives the descriptive missing-group errors returned before
// the schema run, so callers see "missing required group: PHI" instead of a
// generic schema message.
var requiredGroups = []string{"PII", "PHI", "contextual_information", "metadata"}

// Validate checks a raw store payload against the intake contract and
// decodes it into a typed record. It never mutates the input.
func Validate(raw json.RawMessage) (*models.IntakeRecord, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, errors.NewIntakeValidationFailedError(fmt.Sprintf("payload is not a JSON object: %v", err))
	}

	for _, group := range requiredGroups {
		if _, ok := probe[group]; !ok {
			return nil, errors.NewIntakeValidationFailedError(fmt.Sprintf("missing required group: %s", group))
		}
	}

	schemaLoader := gojsonschema.NewStringLoader(recordSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, errors.NewIntakeValidationFailedError(fmt.Sprintf("schema evaluation failed: %v", err))
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, errors.NewIntakeValidationFailedError(strings.Join(errs, "; "))
	}

	var record models.IntakeRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.NewIntakeValidationFailedError(fmt.Sprintf("payload does not match record shape: %v", err))
	}

	for _, key := range models.SymptomKeys {
		symptom, ok := record.PHI.Symptoms[key]
		if !ok {
			return nil, errors.NewIntakeValidationFailedError(fmt.Sprintf("missing symptom entry: %s", key))
		}
		if err := checkSeverity(key, symptom.Severity); err != nil {
			return nil, err
		}
	}
	if err := checkSeverity("numbness_or_tingling", record.PHI.NumbnessOrTingling.Severity); err != nil {
		return nil, err
	}

	return &record, nil
}

// checkSeverity accepts 0..10 (string or numeric form), "N/A", or an
// unfilled placeholder. Anything else is rejected.
func checkSeverity(field string, severity models.FlexValue) error {
	v := strings.TrimSpace(string(severity))
	if v == "" || severity.IsNA() || models.IsPlaceholder(v) {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.NewIntakeValidationFailedError(fmt.Sprintf("symptom %s: severity %q is not a number or N/A", field, v))
	}
	if n < 0 || n > 10 {
		return errors.NewIntakeValidationFailedError(fmt.Sprintf("symptom %s: severity %v outside 0-10", field, n))
	}
	return nil
}
