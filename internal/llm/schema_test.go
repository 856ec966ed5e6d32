package llm

import (
	"errors"
	"testing"
)

func TestValidateMetricsValid(t *testing.T) {
	raw := []byte(`{
		"sentiment": {"positive": 0.6, "negative": 0.3, "neutral": 0.1},
		"aspects": {"배송": {"positive": 4, "negative": 1, "neutral": 0}},
		"keywords": ["빠른배송"],
		"issues": [],
		"trend": {"2026-W18": 0.5}
	}`)

	m, err := validateMetrics(raw)
	if err != nil {
		t.Fatalf("Expected valid metrics, got error: %v", err)
	}
	if m.Sentiment["positive"] != 0.6 {
		t.Errorf("Sentiment not decoded: %+v", m.Sentiment)
	}
	if _, ok := m.Aspects["배송"]; !ok {
		t.Errorf("Aspects not decoded: %+v", m.Aspects)
	}
}

func TestValidateMetricsAspectsAsList(t *testing.T) {
	// The known failure mode: aspects arrives as an array
	raw := []byte(`{
		"sentiment": {"positive": 1},
		"aspects": [{"name": "배송", "positive": 4}],
		"keywords": [],
		"issues": []
	}`)

	_, err := validateMetrics(raw)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("Expected ErrSchemaViolation for aspects list, got %v", err)
	}
}

func TestValidateMetricsMissingField(t *testing.T) {
	raw := []byte(`{"sentiment": {"positive": 1}, "aspects": {}, "keywords": []}`)

	_, err := validateMetrics(raw)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("Expected ErrSchemaViolation for missing issues, got %v", err)
	}
}

func TestValidateMetricsNotAnObject(t *testing.T) {
	_, err := validateMetrics([]byte(`["not", "an", "object"]`))
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("Expected ErrSchemaViolation for array body, got %v", err)
	}
}

func TestValidateMetricsTrendOptional(t *testing.T) {
	raw := []byte(`{
		"sentiment": {"positive": 1},
		"aspects": {},
		"keywords": [],
		"issues": [],
		"trend": null
	}`)

	if _, err := validateMetrics(raw); err != nil {
		t.Fatalf("Expected null trend to be accepted, got %v", err)
	}
}

func TestValidateSummaryValid(t *testing.T) {
	raw := []byte(`{
		"summary": "배송 만족도가 높습니다",
		"insights": {"marketing": ["빠른 배송 강조"], "quality": []},
		"evidence_ids": ["1", "2"],
		"metadata": {"reviews_used": 10}
	}`)

	sum, err := validateSummary(raw)
	if err != nil {
		t.Fatalf("Expected valid summary, got error: %v", err)
	}
	if sum.Summary == "" {
		t.Error("Summary not decoded")
	}
	if len(sum.Insights["marketing"]) != 1 {
		t.Errorf("Insights not decoded: %+v", sum.Insights)
	}
}

func TestValidateSummaryMissingSummary(t *testing.T) {
	raw := []byte(`{"insights": {}, "metadata": {}}`)

	_, err := validateSummary(raw)
	if !errors.Is(err, ErrSchemaViolation) {
		t.Fatalf("Expected ErrSchemaViolation for missing summary, got %v", err)
	}
}

func TestValidateSummaryWrongKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"summary not string", `{"summary": 42}`},
		{"insights not object", `{"summary": "ok", "insights": ["a"]}`},
		{"metadata not object", `{"summary": "ok", "metadata": "x"}`},
		{"evidence not list", `{"summary": "ok", "evidence_ids": {"a": 1}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validateSummary([]byte(tc.raw))
			if !errors.Is(err, ErrSchemaViolation) {
				t.Errorf("Expected ErrSchemaViolation, got %v", err)
			}
		})
	}
}

func TestValidateSummaryDefaultsNilMaps(t *testing.T) {
	sum, err := validateSummary([]byte(`{"summary": "ok"}`))
	if err != nil {
		t.Fatalf("Expected minimal summary to validate, got %v", err)
	}
	if sum.Insights == nil || sum.Metadata == nil {
		t.Error("Expected nil maps to be defaulted")
	}
}
