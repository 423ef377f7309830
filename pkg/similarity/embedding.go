package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/opsvigil/vigil/pkg/httputil"
	"github.com/opsvigil/vigil/pkg/model"
)

// EmbeddingProvider turns text into a vector. Implementations exist for an
// Ollama HTTP endpoint and a local ONNX model.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingSearcher ranks historical incidents by cosine similarity of text
// embeddings, held in an in-process chromem collection. Index must be called
// before FindSimilar.
type EmbeddingSearcher struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu    sync.RWMutex
	byID  map[string]model.HistoricalIncident
	ready bool
}

// NewEmbeddingSearcher creates a searcher backed by the given provider.
func NewEmbeddingSearcher(embedder EmbeddingProvider) (*EmbeddingSearcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}

	db := chromem.NewDB()
	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.CreateCollection("historical_incidents", nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &EmbeddingSearcher{
		db:         db,
		collection: collection,
		byID:       make(map[string]model.HistoricalIncident),
	}, nil
}

// Index embeds the historical dataset into the collection. Safe to call once
// at startup; incidents with duplicate ids keep the last occurrence.
func (e *EmbeddingSearcher) Index(ctx context.Context, source IncidentSource) error {
	history, err := source.HistoricalIncidents(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs := make([]chromem.Document, 0, len(history))
	for _, hist := range history {
		e.byID[hist.IncidentID] = hist
		docs = append(docs, chromem.Document{
			ID:      hist.IncidentID,
			Content: incidentText(hist.Summary, hist.Description),
		})
	}
	if len(docs) > 0 {
		if err := e.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("add documents: %w", err)
		}
	}
	e.ready = true
	return nil
}

// FindSimilar queries the collection for the topN nearest historical
// incidents, most similar first.
func (e *EmbeddingSearcher) FindSimilar(ctx context.Context, incident model.Incident, topN int) ([]model.HistoricalIncident, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil, fmt.Errorf("embedding searcher not indexed")
	}
	if topN <= 0 || len(e.byID) == 0 {
		return nil, nil
	}
	if topN > len(e.byID) {
		topN = len(e.byID)
	}

	results, err := e.collection.Query(ctx, incidentText(incident.Summary, incident.Description), topN, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	out := make([]model.HistoricalIncident, 0, len(results))
	for _, r := range results {
		if hist, ok := e.byID[r.ID]; ok {
			out = append(out, hist)
		}
	}
	return out, nil
}

// OllamaEmbedder embeds text through an Ollama /api/embeddings endpoint.
type OllamaEmbedder struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewOllamaEmbedder creates an embedder for the given model and base URL.
func NewOllamaEmbedder(embedModel, baseURL string) *OllamaEmbedder {
	return &OllamaEmbedder{
		model:   embedModel,
		baseURL: baseURL,
		client:  httputil.MediumClient(),
	}
}

// Embed posts the text to Ollama and returns the embedding vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]string{
		"model":  o.model,
		"prompt": text,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := httputil.ReadErrorBody(resp.Body)
		return nil, fmt.Errorf("ollama embedding returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}
	return result.Embedding, nil
}
