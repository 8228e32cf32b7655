package wordjudge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/pkg/wordjudge"
)

// TestQueryKey_NormalizesCaseAndSpace tests the canonical key
func TestQueryKey_NormalizesCaseAndSpace(t *testing.T) {
	a := wordjudge.Query{Category: "City", Letter: "b", Answer: " Berlin "}
	b := wordjudge.Query{Category: "city", Letter: "B", Answer: "berlin"}
	if a.Key() != b.Key() {
		t.Errorf("expected equal keys, got %q and %q", a.Key(), b.Key())
	}

	c := wordjudge.Query{Category: "City", Letter: "B", Answer: "Boston"}
	if a.Key() == c.Key() {
		t.Error("expected different answers to have different keys")
	}
}

// TestJudgeBatch_PostsAndKeysVerdicts tests the request shape and the
// verdict map keying
func TestJudgeBatch_PostsAndKeysVerdicts(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody struct {
		Language string           `json:"language"`
		Queries  []wordjudge.Query `json:"queries"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"category": "City", "letter": "B", "answer": "Berlin", "valid": true},
				{"category": "City", "letter": "B", "answer": "Bxq", "valid": false},
			},
		})
	}))
	defer srv.Close()

	client := wordjudge.NewHTTPClient(srv.URL, 5*time.Second, logger.New())
	queries := []wordjudge.Query{
		{Category: "City", Letter: "B", Answer: "Berlin"},
		{Category: "City", Letter: "B", Answer: "Bxq"},
	}
	verdicts, err := client.JudgeBatch(context.Background(), "en", queries)
	if err != nil {
		t.Fatalf("JudgeBatch failed: %v", err)
	}

	if gotPath != "/judge" {
		t.Errorf("expected POST /judge, got %s", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}
	if gotBody.Language != "en" || len(gotBody.Queries) != 2 {
		t.Errorf("unexpected request body: %+v", gotBody)
	}

	if !verdicts[queries[0].Key()] {
		t.Error("expected Berlin judged valid")
	}
	if verdicts[queries[1].Key()] {
		t.Error("expected Bxq judged invalid")
	}
}

// TestJudgeBatch_NonOKStatus tests HTTP error handling
func TestJudgeBatch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := wordjudge.NewHTTPClient(srv.URL, 5*time.Second, logger.New())
	_, err := client.JudgeBatch(context.Background(), "en",
		[]wordjudge.Query{{Category: "City", Letter: "B", Answer: "Berlin"}})
	if err == nil {
		t.Error("expected an error on a 503 response")
	}
}

// TestJudgeBatch_ErrorFieldFails tests the in-band error channel
func TestJudgeBatch_ErrorFieldFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "model unavailable"})
	}))
	defer srv.Close()

	client := wordjudge.NewHTTPClient(srv.URL, 5*time.Second, logger.New())
	_, err := client.JudgeBatch(context.Background(), "en",
		[]wordjudge.Query{{Category: "City", Letter: "B", Answer: "Berlin"}})
	if err == nil {
		t.Error("expected an error when the judge reports one")
	}
}

// TestJudgeBatch_OmittedVerdictFails tests that a partial response is
// treated as a failure rather than a silent miss
func TestJudgeBatch_OmittedVerdictFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"category": "City", "letter": "B", "answer": "Berlin", "valid": true},
			},
		})
	}))
	defer srv.Close()

	client := wordjudge.NewHTTPClient(srv.URL, 5*time.Second, logger.New())
	_, err := client.JudgeBatch(context.Background(), "en", []wordjudge.Query{
		{Category: "City", Letter: "B", Answer: "Berlin"},
		{Category: "City", Letter: "B", Answer: "Boston"},
	})
	if err == nil {
		t.Error("expected an error when a verdict is omitted")
	}
}

// TestJudgeBatch_EmptyQueriesSkipsNetwork tests the zero-query short cut
func TestJudgeBatch_EmptyQueriesSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := wordjudge.NewHTTPClient(srv.URL, 5*time.Second, logger.New())
	verdicts, err := client.JudgeBatch(context.Background(), "en", nil)
	if err != nil {
		t.Fatalf("JudgeBatch failed: %v", err)
	}
	if len(verdicts) != 0 {
		t.Errorf("expected empty verdicts, got %v", verdicts)
	}
	if called {
		t.Error("expected no HTTP request for an empty batch")
	}
}
