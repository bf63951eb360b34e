package ingest

import (
	"encoding/json"
	"strings"
	"testing"
)

func validPayload() map[string]any {
	return map[string]any{
		"payload_version": "v1",
		"source":          "Example Wire",
		"title":           "Example headline",
		"url":             "https://example.com/story",
		"published_at":    "2026-08-01T12:00:00Z",
		"content":         "Body text.",
		"score_total":     42.5,
		"tags":            []string{"economy"},
	}
}

func marshal(t *testing.T, payload map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestValidatePayloadAccepts(t *testing.T) {
	t.Parallel()

	article, err := ValidatePayload(marshal(t, validPayload()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if article.Title != "Example headline" {
		t.Fatalf("unexpected title: %q", article.Title)
	}
	if article.ScoreTotal == nil || *article.ScoreTotal != 42.5 {
		t.Fatalf("unexpected score_total: %v", article.ScoreTotal)
	}
}

func TestValidatePayloadRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing title", func(p map[string]any) { delete(p, "title") }},
		{"empty title", func(p map[string]any) { p["title"] = "" }},
		{"missing url", func(p map[string]any) { delete(p, "url") }},
		{"relative url", func(p map[string]any) { p["url"] = "not-a-url" }},
		{"wrong version", func(p map[string]any) { p["payload_version"] = "v2" }},
		{"bad timestamp", func(p map[string]any) { p["published_at"] = "yesterday" }},
		{"unknown field", func(p map[string]any) { p["surprise"] = true }},
		{"empty tag", func(p map[string]any) { p["tags"] = []string{""} }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			payload := validPayload()
			tc.mutate(payload)
			if _, err := ValidatePayload(marshal(t, payload)); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestValidatePayloadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "{", `{"a":1}{"b":2}`} {
		if _, err := ValidatePayload(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestValidatePayloadTrailingContent(t *testing.T) {
	t.Parallel()

	raw := strings.TrimSpace(string(marshal(t, validPayload()))) + " trailing"
	if _, err := ValidatePayload(json.RawMessage(raw)); err == nil {
		t.Fatalf("expected error for trailing content")
	}
}
