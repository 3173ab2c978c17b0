// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the brain-engine CLI. It exposes
// the knowledge-store operations (ingest, entry management, semantic and
// graph search, document reads, audit queries, export) as subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/internal/audit"
	"github.com/pdiddy/brain-engine/internal/brain"
	"github.com/pdiddy/brain-engine/internal/capability"
	"github.com/pdiddy/brain-engine/internal/chunking"
	"github.com/pdiddy/brain-engine/internal/contentstore"
	"github.com/pdiddy/brain-engine/internal/graph"
	"github.com/pdiddy/brain-engine/internal/retrieval"
	"github.com/pdiddy/brain-engine/internal/secrets"
	"github.com/pdiddy/brain-engine/internal/session"
	"github.com/pdiddy/brain-engine/internal/store"
	"github.com/pdiddy/brain-engine/internal/vectorindex"
	"github.com/pdiddy/brain-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the brain-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "brain-engine",
	Short: "Local-first personal knowledge store",
	Long: `brain-engine maintains a local, content-addressed knowledge store. Content
of any modality (text, documents, images, audio) is deduplicated, chunked,
embedded, and linked into a knowledge graph. Retrieval combines vector
similarity, keyword search, and graph expansion, with every operation
recorded in an audit ledger.

All inference (embedding, OCR, transcription, summarization, entity
extraction, reranking) is delegated to a configured capability API; the
engine itself stores, indexes, and retrieves.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./brain-engine.yaml or ~/.config/brain-engine/config.yaml)")
	rootCmd.PersistentFlags().String("conversation", "", "conversation ID recorded in the audit ledger")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging to stderr")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("brain-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "brain-engine"))
		}
	}

	viper.SetEnvPrefix("BRAIN_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfig assembles the full configuration from the config file,
// environment, and loaded secrets.
func engineConfig() types.Config {
	viper.SetDefault("store.data_dir", "brain")
	viper.SetDefault("store.max_results", 20)
	viper.SetDefault("capability.timeout", 30*time.Second)

	return types.Config{
		Store: types.StoreConfig{
			DataDir:    viper.GetString("store.data_dir"),
			MaxResults: viper.GetInt("store.max_results"),
		},
		Capability: types.CapabilityConfig{
			BaseURL:            viper.GetString("capability.base_url"),
			RerankURL:          viper.GetString("capability.rerank_url"),
			APIKey:             secretDefault("capability-api-key", viper.GetString("capability.api_key")),
			ChatModel:          viper.GetString("capability.chat_model"),
			EmbeddingModel:     viper.GetString("capability.embedding_model"),
			VisionModel:        viper.GetString("capability.vision_model"),
			TranscribeModel:    viper.GetString("capability.transcribe_model"),
			RerankModel:        viper.GetString("capability.rerank_model"),
			EmbeddingDimension: viper.GetInt("capability.embedding_dimension"),
			Timeout:            viper.GetDuration("capability.timeout"),
			MaxRetries:         viper.GetInt("capability.max_retries"),
			EmbeddingCacheSize: viper.GetInt("capability.embedding_cache_size"),
		},
		Chunking: types.ChunkingConfig{
			WindowTokens:  viper.GetInt("chunking.window_tokens"),
			OverlapTokens: viper.GetInt("chunking.overlap_tokens"),
			Encoding:      viper.GetString("chunking.encoding"),
		},
		Retrieval: types.RetrievalConfig{
			CandidateMultiplier: viper.GetInt("retrieval.candidate_multiplier"),
			GraphDepth:          viper.GetInt("retrieval.graph_depth"),
		},
	}
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// app bundles the long-lived components one CLI invocation uses.
type app struct {
	brain    *brain.Brain
	sessions *session.Manager
	close    func()
}

// openBrain builds the full component graph on one open store. The
// returned app's close releases the store and flushes the logger.
func openBrain(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg := engineConfig()
	logger := newLogger(cmd)

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	closer := func() {
		st.Close()
		_ = logger.Sync()
	}

	client, err := capability.NewClient(cfg.Capability, logger)
	if err != nil {
		closer()
		return nil, err
	}

	content := contentstore.New(st, logger)
	pipeline, err := chunking.NewPipeline(st, content, client, cfg.Chunking, logger)
	if err != nil {
		closer()
		return nil, err
	}

	index := vectorindex.New(st, logger)
	if err := index.Load(ctx); err != nil {
		closer()
		return nil, err
	}

	kg := graph.New(st, logger)
	engine := retrieval.NewEngine(client, index, st, kg, cfg.Retrieval, logger)
	ledger := audit.New(st, logger)

	b := brain.New(brain.Deps{
		Store:   st,
		Content: content,
		Chunker: pipeline,
		Index:   index,
		Graph:   kg,
		Engine:  engine,
		Ledger:  ledger,
		AI:      client,
		Logger:  logger,
	})
	return &app{
		brain:    b,
		sessions: session.NewManager(client, logger),
		close:    closer,
	}, nil
}

func conversationID(cmd *cobra.Command) string {
	id, _ := cmd.Flags().GetString("conversation")
	return id
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
