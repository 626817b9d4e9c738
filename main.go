package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/supabase-community/supabase-go"

	"scenergy-server/modules/common/config"
	"scenergy-server/modules/common/gemini"
	redisclient "scenergy-server/modules/common/redis"
	"scenergy-server/modules/common/storage"
	"scenergy-server/modules/generation"
	"scenergy-server/modules/jobstore"
	"scenergy-server/modules/progress"
	"scenergy-server/modules/video"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "scenergy-generation",
	})
}

// newJobStore selects the persistence adapter from configuration.
func newJobStore(cfg *config.Config) jobstore.Store {
	switch cfg.JobStoreBackend {
	case "supabase":
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
		if err != nil {
			log.Fatalf("❌ Failed to initialize Supabase client: %v", err)
		}
		log.Println("✅ Using Supabase job store")
		return jobstore.NewSupabaseStore(client)

	case "memory":
		log.Println("⚠️  Using in-memory job store (development only)")
		return jobstore.NewMemoryStore()

	default:
		rdb := redisclient.Connect(cfg)
		if rdb == nil {
			log.Fatal("❌ Failed to connect to Redis")
		}
		log.Println("✅ Using Redis job store")
		return jobstore.NewRedisStore(rdb)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	store := newJobStore(cfg)
	objStorage := storage.NewClient(cfg)

	generator, err := gemini.NewClient(cfg.GeminiAPIKeys, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini client: %v", err)
	}

	hub := progress.NewHub()

	queue := generation.NewQueue(store, objStorage, generator, jobNotifier{hub}, generation.Options{
		WorkerCount:   cfg.WorkerCount,
		QueueCapacity: cfg.QueueCapacity,
		VariantDelay:  cfg.VariantDelay,
		TerminalTTL:   cfg.TerminalTTL,
		Retention:     cfg.Retention,
	})
	queue.Start()
	defer queue.Stop()

	sweeper := generation.NewSweeper(queue, cfg.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws/jobs", hub.ServeWS)

	generation.NewHandler(queue).RegisterRoutes(r)

	if cfg.VideoAPIEndpoint != "" {
		video.NewHandler(video.NewService(cfg)).RegisterRoutes(r)
		log.Println("✅ Video endpoints enabled")
	}

	log.Printf("🚀 Scenergy generation server starting on port %s", cfg.Port)
	log.Printf("📡 Progress WebSocket: ws://localhost:%s/ws/jobs?jobId=...", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// jobNotifier adapts the progress hub to the orchestrator's notifier port.
type jobNotifier struct {
	hub *progress.Hub
}

func (n jobNotifier) Notify(jobID string, job *generation.Job) {
	n.hub.Notify(jobID, job)
}
