// keepsake-chat is a WebSocket chat server with long-term memory.
// Each connected client converses with the assistant; what the conversation
// reveals is reconciled into per-owner memory records between turns.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/keepsake-ai/keepsake-go-sdk/assemble"
	"github.com/keepsake-ai/keepsake-go-sdk/config"
	"github.com/keepsake-ai/keepsake-go-sdk/core"
	"github.com/keepsake-ai/keepsake-go-sdk/engine"
	"github.com/keepsake-ai/keepsake-go-sdk/extract"
	"github.com/keepsake-ai/keepsake-go-sdk/model"
	"github.com/keepsake-ai/keepsake-go-sdk/recall"
	chromemindex "github.com/keepsake-ai/keepsake-go-sdk/recall/store/chromem"
	"github.com/keepsake-ai/keepsake-go-sdk/store"
	"github.com/keepsake-ai/keepsake-go-sdk/store/cached"
	"github.com/keepsake-ai/keepsake-go-sdk/store/inmem"
	redisstore "github.com/keepsake-ai/keepsake-go-sdk/store/redis"
)

func main() {
	// ============================================================================
	// CONFIGURATION
	// ============================================================================
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to keepsake.yaml (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("❌ Loading config: %v", err)
		}
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		log.Fatal("❌ ANTHROPIC_API_KEY environment variable is required")
	}

	// ============================================================================
	// STORE SETUP
	// ============================================================================
	recordStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("❌ Setting up store: %v", err)
	}
	defer recordStore.Close()
	log.Printf("✅ Record store ready (backend=%s)", cfg.Store.Backend)

	// ============================================================================
	// ENGINE SETUP
	// ============================================================================
	anthropicClient := anthropic.NewClient(option.WithAPIKey(anthropicKey))
	client := model.NewAnthropicClient(&anthropicClient,
		model.WithModel(cfg.Model.Name),
		model.WithMaxTokens(cfg.Model.MaxTokens),
	)

	engineCfg := engine.DefaultConfig()
	engineCfg.WindowSize = cfg.Memory.WindowSize
	engineCfg.MaxTokens = cfg.Model.MaxTokens

	extractCfg := *extract.DefaultConfig
	extractCfg.RepairAttempts = cfg.Memory.RepairAttempts

	assembleCfg := assemble.DefaultConfig()
	assembleCfg.MaxItems = cfg.Memory.MaxContextItems

	opts := []engine.Option{
		engine.WithConfig(engineCfg),
		engine.WithExtractConfig(&extractCfg),
		engine.WithAssembleConfig(assembleCfg),
	}
	if cfg.Recall.Enabled {
		embedder, err := newEmbedder()
		if err != nil {
			log.Fatalf("❌ Setting up embedder: %v", err)
		}
		recaller := recall.New(chromemindex.New(), embedder, recall.Config{
			Limit:         cfg.Recall.Limit,
			MinSimilarity: cfg.Recall.MinSimilarity,
		})
		opts = append(opts, engine.WithRecall(recaller))
		log.Println("✅ Episodic recall enabled")
	}

	eng := engine.New(client, recordStore, nil, opts...)

	// ============================================================================
	// SERVER
	// ============================================================================
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", serveChat(eng))

	log.Printf("🚀 keepsake-chat listening on %s", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, mux); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

func buildStore(cfg *config.Config) (store.Store, error) {
	var backend store.Store
	var err error

	switch cfg.Store.Backend {
	case "redis":
		backend, err = redisstore.New(context.Background(), redisstore.Options{URL: cfg.Store.RedisURL})
		if err != nil {
			return nil, err
		}
	default:
		backend = inmem.New()
	}

	if cfg.Store.CacheSize > 0 {
		return cached.New(backend, cfg.Store.CacheSize)
	}
	return backend, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local development server; tighten this before exposing publicly.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is one inbound chat message.
type clientFrame struct {
	OwnerID  string `json:"owner_id"`
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// serverFrame is one outbound reply.
type serverFrame struct {
	Text          string `json:"text"`
	MemoryChanged bool   `json:"memory_changed"`
	Error         string `json:"error,omitempty"`
}

// serveChat upgrades the connection and runs one engine turn per frame.
// History is kept per connection; memory records persist across connections.
func serveChat(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[CHAT] Upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var history []core.Message
		for {
			var frame clientFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[CHAT] Read error: %v", err)
				}
				return
			}

			if frame.OwnerID == "" || frame.Message == "" {
				writeFrame(conn, serverFrame{Error: "owner_id and message are required"})
				continue
			}

			output, err := eng.Run(r.Context(), &engine.Input{
				OwnerID:     frame.OwnerID,
				ThreadID:    frame.ThreadID,
				UserMessage: frame.Message,
				History:     history,
			})
			if err != nil {
				log.Printf("[CHAT] Turn failed for owner=%s: %v", frame.OwnerID, err)
				writeFrame(conn, serverFrame{Error: "something went wrong, try again"})
				continue
			}

			history = append(history,
				core.NewUserMessage(frame.Message),
				core.NewAssistantMessage(output.Text),
			)
			writeFrame(conn, serverFrame{
				Text:          output.Text,
				MemoryChanged: output.Memory.Changed(),
			})
		}
	}
}

func writeFrame(conn *websocket.Conn, frame serverFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("[CHAT] Write error: %v", err)
	}
}
