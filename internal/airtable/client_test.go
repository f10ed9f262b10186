package airtable

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/framegraph/framegraph/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 1}
}

func TestFindRecordsFollowsPagination(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotFilter string
	var offsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFilter = r.URL.Query().Get("filterByFormula")
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		switch offset {
		case "":
			json.NewEncoder(w).Encode(listResponse{
				Records: []Record{{ID: "rec1", Fields: map[string]any{"FrameID": "frame1"}}},
				Offset:  "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(listResponse{
				Records: []Record{{ID: "rec2", Fields: map[string]any{"FrameID": "frame2"}}},
			})
		default:
			http.Error(w, "unexpected offset", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "key123",
		BaseID:  "base1",
		Table:   "Frames",
	}, noRetry(), testLogger())

	records, err := client.FindRecords(context.Background(), "NOT({Processed})")
	if err != nil {
		t.Fatalf("FindRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records)=%d, want 2", len(records))
	}
	if records[0].ID != "rec1" || records[1].ID != "rec2" {
		t.Fatalf("records=%v", records)
	}
	if gotAuth != "Bearer key123" {
		t.Fatalf("auth header=%q", gotAuth)
	}
	if gotFilter != "NOT({Processed})" {
		t.Fatalf("filter=%q", gotFilter)
	}
	if len(offsets) != 2 || offsets[1] != "page2" {
		t.Fatalf("offsets=%v", offsets)
	}
}

func TestFindRecordsRetriesServerErrors(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(listResponse{
			Records: []Record{{ID: "rec1"}},
		})
	}))
	defer server.Close()

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	client := NewClient(Config{BaseURL: server.URL, BaseID: "b", Table: "t"}, policy, testLogger())

	records, err := client.FindRecords(context.Background(), "")
	if err != nil {
		t.Fatalf("FindRecords: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts=%d, want 2", attempts)
	}
	if len(records) != 1 {
		t.Fatalf("len(records)=%d, want 1", len(records))
	}
}

func TestUpdateRecordPatchesFields(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotContentType string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, BaseID: "base1", Table: "Frames"}, noRetry(), testLogger())

	err := client.UpdateRecord(context.Background(), "rec1", map[string]any{"Processed": true})
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Fatalf("method=%q, want PATCH", gotMethod)
	}
	if gotPath != "/base1/Frames/rec1" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type=%q", gotContentType)
	}
	fields, _ := gotBody["fields"].(map[string]any)
	if fields["Processed"] != true {
		t.Fatalf("body=%v", gotBody)
	}
}

func TestThrottleSpacesCalls(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listResponse{})
	}))
	defer server.Close()

	minDelay := 30 * time.Millisecond
	client := NewClient(Config{BaseURL: server.URL, BaseID: "b", Table: "t", MinDelay: minDelay}, noRetry(), testLogger())

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.FindRecords(ctx, ""); err != nil {
			t.Fatalf("FindRecords: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*minDelay {
		t.Fatalf("three calls finished in %v, want at least %v between them", elapsed, 2*minDelay)
	}
}
