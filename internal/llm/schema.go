package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// validateMetrics checks the stage-1 response against the fixed metrics
// schema before decoding. The aspects field is the historical trouble spot:
// models occasionally return it as a list, which must fail as a schema
// violation rather than be persisted.
func validateMetrics(raw []byte) (*Metrics, error) {
	fields, err := topLevelFields(raw)
	if err != nil {
		return nil, err
	}

	for _, key := range []string{"sentiment", "aspects", "keywords", "issues"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrSchemaViolation, key)
		}
	}

	if !isJSONObject(fields["sentiment"]) {
		return nil, fmt.Errorf("%w: sentiment must be a mapping", ErrSchemaViolation)
	}
	if !isJSONObject(fields["aspects"]) {
		return nil, fmt.Errorf("%w: aspects must be a mapping, not a list", ErrSchemaViolation)
	}
	if !isJSONArray(fields["keywords"]) {
		return nil, fmt.Errorf("%w: keywords must be a list", ErrSchemaViolation)
	}
	if !isJSONArray(fields["issues"]) {
		return nil, fmt.Errorf("%w: issues must be a list", ErrSchemaViolation)
	}
	if trend, ok := fields["trend"]; ok && !isJSONNull(trend) && !isJSONObject(trend) {
		return nil, fmt.Errorf("%w: trend must be a mapping", ErrSchemaViolation)
	}

	var m Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	return &m, nil
}

// validateSummary checks the stage-2 response shape before decoding
func validateSummary(raw []byte) (*Summary, error) {
	fields, err := topLevelFields(raw)
	if err != nil {
		return nil, err
	}

	summaryRaw, ok := fields["summary"]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrSchemaViolation, "summary")
	}
	if !isJSONString(summaryRaw) {
		return nil, fmt.Errorf("%w: summary must be a string", ErrSchemaViolation)
	}
	if insights, ok := fields["insights"]; ok && !isJSONNull(insights) && !isJSONObject(insights) {
		return nil, fmt.Errorf("%w: insights must be a mapping", ErrSchemaViolation)
	}
	if metadata, ok := fields["metadata"]; ok && !isJSONNull(metadata) && !isJSONObject(metadata) {
		return nil, fmt.Errorf("%w: metadata must be a mapping", ErrSchemaViolation)
	}
	if evidence, ok := fields["evidence_ids"]; ok && !isJSONNull(evidence) && !isJSONArray(evidence) {
		return nil, fmt.Errorf("%w: evidence_ids must be a list", ErrSchemaViolation)
	}

	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if sum.Insights == nil {
		sum.Insights = map[string][]string{}
	}
	if sum.Metadata == nil {
		sum.Metadata = map[string]interface{}{}
	}

	return &sum, nil
}

// topLevelFields splits the body into its top-level keys without decoding
// values, so each field's JSON kind can be checked individually
func topLevelFields(raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: body is not a JSON object: %v", ErrSchemaViolation, err)
	}
	return fields, nil
}

func isJSONObject(raw json.RawMessage) bool { return firstByte(raw) == '{' }
func isJSONArray(raw json.RawMessage) bool  { return firstByte(raw) == '[' }
func isJSONString(raw json.RawMessage) bool { return firstByte(raw) == '"' }

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
