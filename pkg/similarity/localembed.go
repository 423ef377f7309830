package similarity

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// LocalEmbedderConfig configures the local ONNX embedder.
type LocalEmbedderConfig struct {
	// ModelPath points at a local feature-extraction model directory.
	ModelPath string
	// ModelName is downloaded into ./models when ModelPath is absent.
	ModelName string
	// OnnxLibraryPath enables the ONNX Runtime backend when set; otherwise
	// the pure Go backend is used.
	OnnxLibraryPath string
}

// DefaultLocalEmbedderConfig targets the MiniLM sentence-embedding model.
func DefaultLocalEmbedderConfig() LocalEmbedderConfig {
	return LocalEmbedderConfig{
		ModelName:       "sentence-transformers/all-MiniLM-L6-v2",
		OnnxLibraryPath: os.Getenv("VIGIL_ONNX_LIBRARY_PATH"),
	}
}

// LocalEmbedder produces sentence embeddings from a local ONNX model, so
// similarity search works with no embedding service at all.
type LocalEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline

	mu    sync.Mutex
	ready bool
}

// NewLocalEmbedder loads the model and builds the feature-extraction
// pipeline. Call Close when done to release the session.
func NewLocalEmbedder(cfg LocalEmbedderConfig) (*LocalEmbedder, error) {
	session, err := newSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	modelPath, err := resolveModelPath(cfg)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("resolve model path: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "incident-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	log.Printf("Local embedder initialized (model: %s)", modelPath)
	return &LocalEmbedder{session: session, pipeline: pipeline, ready: true}, nil
}

func newSession(cfg LocalEmbedderConfig) (*hugot.Session, error) {
	if cfg.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(options.WithOnnxLibraryPath(cfg.OnnxLibraryPath))
		if err == nil {
			log.Printf("Local embedder using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create Go session: %w", err)
	}
	log.Printf("Local embedder using pure Go backend")
	return session, nil
}

func resolveModelPath(cfg LocalEmbedderConfig) (string, error) {
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err == nil {
			return cfg.ModelPath, nil
		}
	}
	if cfg.ModelName == "" {
		return "", fmt.Errorf("no model path or name specified")
	}

	modelsDir := "./models"
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return "", fmt.Errorf("create models directory: %w", err)
	}

	log.Printf("Downloading model %s...", cfg.ModelName)
	modelPath, err := hugot.DownloadModel(cfg.ModelName, modelsDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("download model: %w", err)
	}
	log.Printf("Model downloaded to %s", modelPath)
	return modelPath, nil
}

// Embed runs the pipeline on the text and returns its embedding vector.
func (l *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return nil, fmt.Errorf("local embedder closed")
	}

	output, err := l.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	if len(output.Embeddings) == 0 || len(output.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("pipeline returned no embedding")
	}
	return output.Embeddings[0], nil
}

// Close destroys the underlying session.
func (l *LocalEmbedder) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.ready {
		return nil
	}
	l.ready = false
	return l.session.Destroy()
}
