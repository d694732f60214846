package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebFetchExtractsVisibleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != webFetchUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><script>junk()</script><p>real content</p></body></html>`))
	}))
	defer srv.Close()

	tool := NewWebFetchTool()
	input, _ := json.Marshal(WebFetchInput{URL: srv.URL})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "real content") {
		t.Errorf("visible text missing: %q", result.Output)
	}
	if strings.Contains(result.Output, "junk()") {
		t.Errorf("script leaked into output: %q", result.Output)
	}
	if !strings.HasPrefix(result.Output, "HTTP 200") {
		t.Errorf("expected status header, got %q", result.Output)
	}
}

func TestWebFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tool := NewWebFetchTool()
	input, _ := json.Marshal(WebFetchInput{URL: srv.URL + "/missing"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure for 404")
	}
	if !strings.Contains(result.Error, "HTTP 404") {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestWebFetchRejectsNonHTTP(t *testing.T) {
	tool := NewWebFetchTool()
	input, _ := json.Marshal(WebFetchInput{URL: "file:///etc/passwd"})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected rejection of non-http scheme")
	}
}

func TestWebFetchTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	tool := NewWebFetchTool()
	input, _ := json.Marshal(WebFetchInput{URL: srv.URL, MaxChars: 100})
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if !strings.Contains(result.Output, "truncated 400 of 500 chars") {
		t.Errorf("expected truncation marker, got %q", result.Output)
	}
}
