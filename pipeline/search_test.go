package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDuckDuckGoParsesInstantAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" || r.URL.Query().Get("no_html") != "1" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{
			"Heading": "Go (linguagem)",
			"AbstractText": "Go é uma linguagem compilada.",
			"AbstractURL": "https://pt.wikipedia.org/wiki/Go",
			"RelatedTopics": [
				{"Text": "Goroutines - concorrência leve", "FirstURL": "https://ex.com/goroutines"},
				{"Topics": [
					{"Text": "Channels - comunicação entre goroutines", "FirstURL": "https://ex.com/channels"}
				]}
			]
		}`))
	}))
	defer srv.Close()

	d := &DuckDuckGo{client: srv.Client(), baseURL: srv.URL}
	results, err := d.Search(context.Background(), "o que é go", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	if results[0].Titulo != "Go (linguagem)" || results[0].Link != "https://pt.wikipedia.org/wiki/Go" {
		t.Errorf("abstract = %+v", results[0])
	}
	// Nested topic groups are flattened and titles cut at " - ".
	if results[1].Titulo != "Goroutines" {
		t.Errorf("topic title = %q", results[1].Titulo)
	}
	if results[2].Titulo != "Channels" || results[2].Link != "https://ex.com/channels" {
		t.Errorf("nested topic = %+v", results[2])
	}
}

func TestDuckDuckGoHonorsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"RelatedTopics": [
			{"Text": "a", "FirstURL": "u1"},
			{"Text": "b", "FirstURL": "u2"},
			{"Text": "c", "FirstURL": "u3"}
		]}`))
	}))
	defer srv.Close()

	d := &DuckDuckGo{client: srv.Client(), baseURL: srv.URL}
	results, err := d.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results", len(results))
	}
}

func TestDuckDuckGoServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := &DuckDuckGo{client: srv.Client(), baseURL: srv.URL}
	if _, err := d.Search(context.Background(), "q", 5); err == nil {
		t.Error("status 502 accepted")
	}
}
