package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/opsvigil/vigil/pkg/config"
	"github.com/opsvigil/vigil/pkg/detect"
	"github.com/opsvigil/vigil/pkg/httputil"
	"github.com/opsvigil/vigil/pkg/model"
	"github.com/opsvigil/vigil/pkg/similarity"
	"github.com/opsvigil/vigil/pkg/store"
)

const Version = "0.1.0"

// Engine bundles the detection components behind the CLI and HTTP surfaces.
// The result cache is optional and absent when Redis is not configured.
type Engine struct {
	detector *detect.Detector
	searcher similarity.Searcher
	cache    *store.ResultCache
	sem      *httputil.Semaphore
	cfg      *config.Config
	closers  []func()
}

// NewEngine wires the store, similarity backend, reasoner, and detector
// from the config. Fails only when a configured collaborator cannot start;
// optional pieces degrade with a log line.
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	e := &Engine{cfg: cfg, sem: httputil.NewSemaphore(cfg.MaxConcurrent)}

	var refStore store.ReferenceStore
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		e.closers = append(e.closers, pg.Close)
		refStore = pg
		log.Printf("Reference data from Postgres")
	} else {
		refStore = store.NewFileStore(cfg.DataDir)
		log.Printf("Reference data from %s", cfg.DataDir)
	}

	e.searcher = newSearcher(ctx, cfg, refStore)

	reasoner := detect.NewChatReasoner(detect.ReasonerConfig{
		Provider:    cfg.LLMProvider,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		BaseURL:     cfg.LLMBaseURL,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutMs) * time.Millisecond,
		MaxRetries:  cfg.LLMMaxRetries,
	})
	log.Printf("Reasoning provider: %s", cfg.LLMProvider)

	if cfg.RedisAddr != "" {
		cache, err := store.NewResultCache(ctx, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			log.Printf("[WARN] result cache disabled: %v", err)
		} else {
			e.cache = cache
			e.closers = append(e.closers, func() { _ = cache.Close() })
			log.Printf("Result cache enabled (redis %s, ttl %s)", cfg.RedisAddr, cfg.CacheTTL)
		}
	}

	e.detector = detect.NewDetector(refStore, e.searcher, reasoner, cfg.Detection)
	return e, nil
}

// newSearcher picks the similarity backend. Embedding backends that fail to
// initialize fall back to keyword search rather than refusing to start.
func newSearcher(ctx context.Context, cfg *config.Config, refStore store.ReferenceStore) similarity.Searcher {
	if cfg.Similarity != config.SimilarityEmbedding {
		log.Printf("Similarity backend: keyword")
		return similarity.NewKeywordSearcher(refStore)
	}

	var embedder similarity.EmbeddingProvider
	if cfg.LocalEmbed {
		local, err := similarity.NewLocalEmbedder(similarity.DefaultLocalEmbedderConfig())
		if err != nil {
			log.Printf("[WARN] local embedder unavailable, falling back to keyword: %v", err)
			return similarity.NewKeywordSearcher(refStore)
		}
		embedder = local
	} else {
		url := cfg.EmbeddingURL
		if url == "" {
			url = "http://localhost:11434"
		}
		embedder = similarity.NewOllamaEmbedder("embeddinggemma", url)
	}

	searcher, err := similarity.NewEmbeddingSearcher(embedder)
	if err != nil {
		log.Printf("[WARN] embedding searcher unavailable, falling back to keyword: %v", err)
		return similarity.NewKeywordSearcher(refStore)
	}
	if err := searcher.Index(ctx, refStore); err != nil {
		log.Printf("[WARN] embedding index failed, falling back to keyword: %v", err)
		return similarity.NewKeywordSearcher(refStore)
	}
	log.Printf("Similarity backend: embedding")
	return searcher
}

// Close releases the engine's collaborators.
func (e *Engine) Close() {
	for _, closeFn := range e.closers {
		closeFn()
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := "3000"
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "analyze":
		if len(os.Args) < 3 {
			fmt.Println("Usage: vigil analyze <incident.json>")
			os.Exit(1)
		}
		runCLIAnalyze(os.Args[2])
	case "version":
		fmt.Printf("Vigil v%s\n", Version)
		fmt.Println("Major-Incident Decision Engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Vigil v%s - Major-Incident Decision Engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  vigil serve [port]            Start HTTP server (default: 3000)")
	fmt.Println("  vigil analyze <incident.json> Classify one incident from a file")
	fmt.Println("  vigil version                 Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  VIGIL_DATA_DIR       Reference data directory (default: data)")
	fmt.Println("  VIGIL_POSTGRES_DSN   Use Postgres for reference data")
	fmt.Println("  VIGIL_LLM_API_KEY    API key for the reasoning service")
	fmt.Println("  VIGIL_LLM_PROVIDER   Provider: ollama, openrouter, groq, openai, custom")
	fmt.Println("  VIGIL_SIMILARITY     Similarity backend: keyword, embedding")
	fmt.Println("  VIGIL_REDIS_ADDR     Enable the detection-result cache")
	fmt.Println("  VIGIL_CONFIG_FILE    YAML config override file")
}

func loadConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	if path := os.Getenv("VIGIL_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			log.Fatalf("config file %s: %v", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

func runHTTPServer(port string) {
	cfg := loadConfig()
	engine, err := NewEngine(context.Background(), cfg)
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}
	defer engine.Close()

	app := fiber.New(fiber.Config{
		AppName: "Vigil",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "ok",
			"version":    Version,
			"detections": engine.sem.Stats(),
		})
	})

	app.Post("/analyze", func(c fiber.Ctx) error {
		var incident model.Incident
		if err := c.Bind().Body(&incident); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if incident.IncidentID == "" || incident.Summary == "" || incident.ServiceCIName == "" {
			return c.Status(400).JSON(fiber.Map{"error": "incident_id, summary, and service_ci_name are required"})
		}

		requestID := uuid.NewString()

		if engine.cache != nil {
			cached, err := engine.cache.Get(c.Context(), incident.IncidentID)
			if err != nil {
				log.Printf("[WARN] cache lookup failed: %v", err)
			} else if cached != nil {
				return c.JSON(fiber.Map{"request_id": requestID, "cached": true, "result": cached})
			}
		}

		if !engine.sem.TryAcquire() {
			return c.Status(503).JSON(fiber.Map{"error": "too many concurrent detections"})
		}
		defer engine.sem.Release()

		result, err := engine.detector.Detect(c.Context(), incident)
		if err != nil {
			return analyzeError(c, err)
		}

		if engine.cache != nil {
			if err := engine.cache.Set(c.Context(), result); err != nil {
				log.Printf("[WARN] cache store failed: %v", err)
			}
		}
		return c.JSON(fiber.Map{"request_id": requestID, "cached": false, "result": result})
	})

	app.Post("/similar", func(c fiber.Ctx) error {
		var req struct {
			model.Incident
			TopN int `json:"top_n"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Summary == "" && req.Description == "" {
			return c.Status(400).JSON(fiber.Map{"error": "summary or description is required"})
		}
		topN := req.TopN
		if topN <= 0 {
			topN = cfg.Detection.SimilarTopN
		}

		matches, err := engine.searcher.FindSimilar(c.Context(), req.Incident, topN)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if matches == nil {
			matches = []model.HistoricalIncident{}
		}
		return c.JSON(fiber.Map{"matches": matches})
	})

	log.Printf("Vigil v%s listening on :%s", Version, port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func analyzeError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, detect.ErrServiceNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, detect.ErrReasoningUnavailable):
		return c.Status(502).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
}

func runCLIAnalyze(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read incident file: %v", err)
	}
	var incident model.Incident
	if err := json.Unmarshal(data, &incident); err != nil {
		log.Fatalf("parse incident file: %v", err)
	}

	cfg := loadConfig()
	engine, err := NewEngine(context.Background(), cfg)
	if err != nil {
		log.Fatalf("engine init: %v", err)
	}
	defer engine.Close()

	result, err := engine.detector.Detect(context.Background(), incident)
	if err != nil {
		log.Fatalf("detection failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Println(string(out))
}
