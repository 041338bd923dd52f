package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rangecraft/internal/author"
	"rangecraft/internal/config"
	"rangecraft/internal/embedding"
	"rangecraft/internal/guide"
	"rangecraft/internal/index"
	"rangecraft/internal/llm"
	"rangecraft/internal/logging"
	"rangecraft/internal/retrieval"
	"rangecraft/internal/schema"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rangecraft",
	Short: "rangecraft - LLM-assisted cyber range scenario authoring",
	Long: `rangecraft turns natural language lab descriptions into schema-valid
cyber range scenario documents using a local Ollama backend.

Generated drafts go through extraction, two-phase validation, and a
bounded repair loop before they are accepted. A local vector index over
past scenarios and knowledge base notes grounds generation, hints, and
explanations.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return err
			}
		}
		cfg, err = config.Load(workspace, configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}
		return logging.Initialize(workspace, cfg.Logging.DebugMode, cfg.Logging.Level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// authorCmd generates a scenario from a natural language description
var authorCmd = &cobra.Command{
	Use:   "author [description]",
	Short: "Generate a schema-valid scenario from a description",
	Long: `Generates a scenario document through the full pipeline:
  1. Retrieve related scenarios and notes from the local index
  2. Generate a draft with the configured Ollama model
  3. Extract JSON from the raw output
  4. Validate against the scenario schema
  5. Repair validation errors, up to the attempt budget

Accepted scenarios are indexed so later sessions can retrieve them.

Example:
  rangecraft author "easy web lab with a SQL injection flag" -o sqli.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAuthor,
}

// validateCmd validates a scenario file without generating anything
var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a scenario JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

// hintCmd produces a tier-bounded hint for a running lab
var hintCmd = &cobra.Command{
	Use:   "hint",
	Short: "Get a tiered hint for a running lab",
	Long: `Produces a hint scoped to the requested tier. Flag values are
redacted from everything sent to the model and from its answer.

Tiers, least to most revealing: nudge, directional, technique, explicit.

Example:
  rangecraft hint --scenario sqli.json --tier directional -q "the login form ignores my quotes"`,
	RunE: runHint,
}

// explainCmd explains a security concept after a lab
var explainCmd = &cobra.Command{
	Use:   "explain [topic]",
	Short: "Explain a security concept in the context of a completed lab",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExplain,
}

// indexCmd seeds the vector index from the knowledge base directory
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index knowledge base notes and scenario files",
	Long: `Embeds and stores markdown notes from the knowledge directory, and
any scenario files passed with --scenario, into the local vector index.
With --watch, keeps running and re-indexes notes as they change.`,
	RunE: runIndex,
}

// statsCmd reports index contents
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics",
	RunE:  runStats,
}

var (
	outputPath    string
	hintTierName  string
	hintScenario  string
	hintState     string
	hintQuestion  string
	explainScn    string
	explainEvents []string
	indexWatch    bool
	indexClear    bool
	indexScns     []string
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: rangecraft.yaml in workspace)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	authorCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the accepted scenario to this file (default: stdout)")

	hintCmd.Flags().StringVar(&hintScenario, "scenario", "", "Scenario JSON file (required)")
	hintCmd.Flags().StringVar(&hintTierName, "tier", "nudge", "Hint tier: nudge, directional, technique, explicit")
	hintCmd.Flags().StringVar(&hintState, "state", "", "Lab state file with the student's progress notes")
	hintCmd.Flags().StringVarP(&hintQuestion, "question", "q", "", "Specific question to answer")
	hintCmd.MarkFlagRequired("scenario")

	explainCmd.Flags().StringVar(&explainScn, "scenario", "", "Scenario JSON file for context")
	explainCmd.Flags().StringSliceVar(&explainEvents, "event", nil, "Recent user action (repeatable)")

	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "Keep watching the knowledge directory for changes")
	indexCmd.Flags().BoolVar(&indexClear, "clear", false, "Clear the index before seeding")
	indexCmd.Flags().StringSliceVar(&indexScns, "scenario", nil, "Scenario JSON file to index (repeatable)")

	// Add commands to root
	rootCmd.AddCommand(authorCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(hintCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext returns a timeout-bounded context cancelled on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// openIndex opens the vector index with its embedding engine.
func openIndex() (*index.Index, error) {
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	path := cfg.Index.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspace, path)
	}
	return index.Open(path, engine)
}

// generationClient builds the Ollama client and verifies the backend is up
// before any command does real work.
func generationClient(ctx context.Context) (*llm.Client, error) {
	client := llm.NewClient(cfg.LLM)
	if err := client.CheckConnection(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func runAuthor(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	description := strings.Join(args, " ")
	logger.Info("Authoring scenario", zap.String("description", description))

	client, err := generationClient(ctx)
	if err != nil {
		return err
	}
	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	assembler := retrieval.NewAssembler(ix)
	controller := author.NewController(client, assembler, cfg.Author)

	result, err := controller.Author(ctx, description)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "%s\n", w.String())
	}
	logger.Info("Scenario accepted",
		zap.String("session", result.SessionID),
		zap.Int("attempts", result.Attempts),
		zap.Int("warnings", len(result.Warnings)))

	if _, err := ix.IndexScenario(ctx, result.Scenario); err != nil {
		logger.Warn("Failed to index accepted scenario", zap.Error(err))
	}

	pretty, err := prettyJSON(result.Raw)
	if err != nil {
		return err
	}
	if outputPath == "" {
		fmt.Println(pretty)
		return nil
	}
	if err := os.WriteFile(outputPath, []byte(pretty+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	fmt.Printf("Scenario written to %s (%d attempt(s), %d warning(s))\n",
		outputPath, result.Attempts, len(result.Warnings))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	findings := schema.Validate(raw)
	for _, f := range findings {
		fmt.Println(f.String())
	}
	if schema.HasBlocking(findings) {
		return fmt.Errorf("%s is not a valid scenario", args[0])
	}
	fmt.Printf("%s is valid\n", args[0])
	return nil
}

func runHint(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	scenario, err := loadScenario(hintScenario)
	if err != nil {
		return err
	}
	tier, err := guide.ParseTier(hintTierName)
	if err != nil {
		return err
	}
	labState := ""
	if hintState != "" {
		data, err := os.ReadFile(hintState)
		if err != nil {
			return err
		}
		labState = string(data)
	}

	client, err := generationClient(ctx)
	if err != nil {
		return err
	}
	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	g := guide.NewGuide(client, retrieval.NewAssembler(ix), cfg.Guide)
	hint, err := g.Hint(ctx, guide.HintRequest{
		Scenario: scenario,
		Tier:     tier,
		LabState: labState,
		Question: hintQuestion,
	})
	if err != nil {
		return err
	}
	fmt.Println(hint)
	return nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	var scenario *schema.Scenario
	if explainScn != "" {
		var err error
		scenario, err = loadScenario(explainScn)
		if err != nil {
			return err
		}
	}

	client, err := generationClient(ctx)
	if err != nil {
		return err
	}
	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	g := guide.NewGuide(client, retrieval.NewAssembler(ix), cfg.Guide)
	explanation, err := g.Explain(ctx, guide.ExplainRequest{
		Topic:        strings.Join(args, " "),
		Scenario:     scenario,
		RecentEvents: explainEvents,
	})
	if err != nil {
		return err
	}
	fmt.Println(explanation)
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	if indexClear {
		if err := ix.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Index cleared")
	}

	knowledgeDir := cfg.Index.KnowledgeDir
	if !filepath.IsAbs(knowledgeDir) {
		knowledgeDir = filepath.Join(workspace, knowledgeDir)
	}
	n, err := ix.IndexKnowledgeBase(ctx, knowledgeDir)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d knowledge base note(s)\n", n)

	for _, path := range indexScns {
		scenario, err := loadScenario(path)
		if err != nil {
			return err
		}
		if _, err := ix.IndexScenario(ctx, scenario); err != nil {
			return err
		}
		fmt.Printf("Indexed scenario %s\n", scenario.Metadata.Name)
	}

	if !indexWatch {
		return nil
	}

	watcher, err := index.NewWatcher(ix, knowledgeDir)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s for changes (Ctrl-C to stop)\n", knowledgeDir)
	<-ctx.Done()
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	ix, err := openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	stats, err := ix.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Engine:    %s (%d dimensions)\n", stats.Engine, stats.Dimensions)
	fmt.Printf("Path:      %s\n", stats.Path)
	return nil
}

// loadScenario reads, validates, and decodes a scenario file.
func loadScenario(path string) (*schema.Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if findings := schema.Validate(raw); schema.HasBlocking(findings) {
		return nil, fmt.Errorf("%s is not a valid scenario: %s", path, findings[0].String())
	}
	return schema.Decode(raw)
}

func prettyJSON(raw json.RawMessage) (string, error) {
	var buf strings.Builder
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
