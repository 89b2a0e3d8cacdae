package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// tagsJSON builds a /api/tags response with the given model names.
func tagsJSON(names ...string) []byte {
	var r tagsResponse
	for _, n := range names {
		r.Models = append(r.Models, struct {
			Name string `json:"name"`
		}{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("nomic-embed-text:latest"))
	}))
	defer srv.Close()

	if !New(srv.URL + "/").IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}

	srv.Close()
	if New(srv.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() on closed server = true, want false")
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("nomic-embed-text:latest", "mxbai-embed-large:v1"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("ListModels = %v, want 2 models", models)
	}
	if !c.HasModel(context.Background(), "nomic-embed-text") {
		t.Error("HasModel(nomic-embed-text) = false, want true (tag suffix ignored)")
	}
	if c.HasModel(context.Background(), "nomic") {
		t.Error("HasModel(nomic) = true, want false")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" || req.Input != "fix my sink" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	vec, err := New(srv.URL).Embed(context.Background(), "nomic-embed-text", "fix my sink")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := []float32{0.1, 0.2, 0.3}
	if len(vec) != len(want) {
		t.Fatalf("got %d floats, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %f, want %f", i, vec[i], want[i])
		}
	}
}

func TestEmbed_Errors(t *testing.T) {
	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := status.Load(); s != 0 {
			w.WriteHeader(int(s))
			return
		}
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()
	c := New(srv.URL)

	if _, err := c.Embed(context.Background(), "m", "x"); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("empty response err = %v, want ErrEmptyEmbedding", err)
	}

	status.Store(http.StatusInternalServerError)
	if _, err := c.Embed(context.Background(), "m", "x"); err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("500 response err = %v, want status error", err)
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Name != "nomic-embed-text" {
			t.Errorf("pull model = %q", body.Name)
		}
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 500})
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 1000})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	var n int
	if err := New(srv.URL).PullModel(context.Background(), "nomic-embed-text", func(PullProgress) { n++ }); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if n != 3 {
		t.Errorf("received %d progress updates, want 3", n)
	}
}

func TestEnsureEmbedModel_OllamaDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := EnsureEmbedModel(context.Background(), New(srv.URL), "nomic-embed-text", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "Ollama is not running") {
		t.Errorf("err = %v, want not running error", err)
	}
}

func TestEnsureEmbedModel_PullsAndWarms(t *testing.T) {
	var pulled, embedded atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write(tagsJSON())
		case "/api/pull":
			pulled.Store(true)
			json.NewEncoder(w).Encode(PullProgress{Status: "success"})
		case "/api/embed":
			embedded.Store(true)
			json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := EnsureEmbedModel(context.Background(), New(srv.URL), "nomic-embed-text", &out); err != nil {
		t.Fatalf("EnsureEmbedModel: %v", err)
	}
	if !pulled.Load() || !embedded.Load() {
		t.Errorf("pulled=%v embedded=%v, want both", pulled.Load(), embedded.Load())
	}
	if !strings.Contains(out.String(), "model nomic-embed-text: warm") {
		t.Errorf("output = %q", out.String())
	}
}
