package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JonDuardo/mentor360-back/internal/config"
	"github.com/JonDuardo/mentor360-back/internal/consolidate"
	"github.com/JonDuardo/mentor360-back/internal/llm"
	mcpserver "github.com/JonDuardo/mentor360-back/internal/mcp"
	"github.com/JonDuardo/mentor360-back/internal/recall"
	"github.com/JonDuardo/mentor360-back/internal/store"
	"github.com/mark3labs/mcp-go/server"
)

const version = "0.1.0-dev"

const defaultModel = "google/gemini-2.5-flash"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(os.Args[2:])
	case "context":
		err = runContext(os.Args[2:])
	case "people":
		err = runPeople(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "vacuum":
		err = runVacuum(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("mentor360 %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds the flags shared by all commands.
type cliFlags struct {
	user      string
	llm       string
	db        string
	mentioned string
	name      string
	rest      []string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("%s requires a value", arg)
			}
			f.user = args[i]
		case arg == "--llm":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--llm requires a value")
			}
			f.llm = args[i]
		case arg == "--db":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--db requires a value")
			}
			f.db = args[i]
		case arg == "--mentioned":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--mentioned requires a value")
			}
			f.mentioned = args[i]
		case arg == "--name":
			i++
			if i >= len(args) {
				return f, fmt.Errorf("--name requires a value")
			}
			f.name = args[i]
		case strings.HasPrefix(arg, "-"):
			return f, fmt.Errorf("unknown flag: %s", arg)
		default:
			f.rest = append(f.rest, arg)
		}
	}
	return f, nil
}

func resolveConfig(f cliFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		CLILLM:    f.llm,
		CLIDBPath: f.db,
	})
}

func openStore(resolved config.ResolvedConfig) (store.Store, error) {
	return store.NewStore(store.StoreConfig{DBPath: resolved.DBPath.Value})
}

func buildProvider(resolved config.ResolvedConfig, purpose string) (llm.Provider, error) {
	spec := resolved.EffectiveLLMModel(purpose, defaultModel)
	cfg, err := llm.ParseLLMFlag(spec.Value)
	if err != nil {
		return nil, err
	}
	if key := resolved.APIKeyForProvider(spec.Value); key.Value != "" {
		cfg.APIKey = key.Value
	}
	return llm.NewProvider(cfg)
}

func buildEngine(resolved config.ResolvedConfig, st store.Store) (*consolidate.Engine, error) {
	extractor, err := buildProvider(resolved, "extract")
	if err != nil {
		return nil, err
	}
	profiler, err := buildProvider(resolved, "profile")
	if err != nil {
		return nil, err
	}
	return consolidate.NewEngine(st, extractor, consolidate.Opts{
		ProfileProvider: profiler,
	}), nil
}

func runProcess(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.user == "" {
		return fmt.Errorf("usage: mentor360 process --user <id> \"<message>\"")
	}
	if len(f.rest) == 0 {
		return fmt.Errorf("no message given")
	}
	message := strings.Join(f.rest, " ")

	resolved, err := resolveConfig(f)
	if err != nil {
		return err
	}
	st, err := openStore(resolved)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	eng, err := buildEngine(resolved, st)
	if err != nil {
		return err
	}

	ctx := context.Background()
	touched, err := eng.ProcessMentions(ctx, f.user, message, time.Now().UTC())
	if err != nil {
		return err
	}

	if len(touched) == 0 {
		fmt.Println("No people mentioned.")
		return nil
	}
	fmt.Printf("Touched: %s\n\n", strings.Join(touched, ", "))

	block, err := recall.SelectAndRender(ctx, st, f.user, touched)
	if err != nil {
		return err
	}
	if block != "" {
		fmt.Println(block)
	}
	return nil
}

func runContext(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.user == "" {
		return fmt.Errorf("usage: mentor360 context --user <id> [--mentioned \"a,b\"]")
	}

	resolved, err := resolveConfig(f)
	if err != nil {
		return err
	}
	st, err := openStore(resolved)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	var mentioned []string
	for _, part := range strings.Split(f.mentioned, ",") {
		if part = strings.TrimSpace(part); part != "" {
			mentioned = append(mentioned, part)
		}
	}

	block, err := recall.SelectAndRender(context.Background(), st, f.user, mentioned)
	if err != nil {
		return err
	}
	if block == "" {
		fmt.Println("No relationship records for this user yet.")
		return nil
	}
	fmt.Println(block)
	return nil
}

func runPeople(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.user == "" {
		return fmt.Errorf("usage: mentor360 people --user <id> [--name <name>]")
	}

	resolved, err := resolveConfig(f)
	if err != nil {
		return err
	}
	st, err := openStore(resolved)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	records, err := st.QueryRecords(context.Background(), f.user)
	if err != nil {
		return err
	}
	if f.name != "" {
		records = filterRecords(records, f.name)
	}
	if len(records) == 0 {
		fmt.Println("No matching relationship records.")
		return nil
	}

	for _, r := range records {
		name := r.RealName
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("#%d %s [%s]\n", r.ID, name, r.RelationType)
		if len(r.Aliases) > 0 {
			fmt.Printf("   apelidos: %s\n", strings.Join(r.Aliases, ", "))
		}
		fmt.Printf("   mentions: %d, last: %s\n", r.MentionCount, r.LastMentionedAt.Format("2006-01-02 15:04"))
		if r.CompactProfile != "" {
			fmt.Printf("   %s\n", r.CompactProfile)
		}
	}
	return nil
}

func filterRecords(records []*store.RelationshipRecord, name string) []*store.RelationshipRecord {
	needle := strings.ToLower(strings.TrimSpace(name))
	var out []*store.RelationshipRecord
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.RealName), needle) {
			out = append(out, r)
			continue
		}
		for _, alias := range r.Aliases {
			if strings.Contains(strings.ToLower(alias), needle) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func runStats(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	resolved, err := resolveConfig(f)
	if err != nil {
		return err
	}
	st, err := openStore(resolved)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Users:   %d\n", stats.UserCount)
	fmt.Printf("Records: %d\n", stats.RecordCount)
	if stats.DBSizeBytes > 0 {
		fmt.Printf("DB size: %.1f KB\n", float64(stats.DBSizeBytes)/1024)
	}
	return nil
}

func runVacuum(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	resolved, err := resolveConfig(f)
	if err != nil {
		return err
	}
	st, err := openStore(resolved)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := st.Vacuum(context.Background()); err != nil {
		return err
	}
	fmt.Println("Vacuum complete.")
	return nil
}

func runMCP(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	resolved, err := resolveConfig(f)
	if err != nil {
		return err
	}
	st, err := openStore(resolved)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	eng, err := buildEngine(resolved, st)
	if err != nil {
		return err
	}

	srv := mcpserver.NewServer(mcpserver.ServerConfig{
		Store:   st,
		Engine:  eng,
		Version: version,
	})
	return server.ServeStdio(srv)
}

func printUsage() {
	fmt.Println(`mentor360 — relationship memory for a conversational mentor

Usage:
  mentor360 process --user <id> "<message>"   Process a message through the memory pipeline
  mentor360 context --user <id> [--mentioned "a,b"]
                                              Render the relationship context block
  mentor360 people --user <id> [--name <n>]   List a user's relationship records
  mentor360 stats                             Show memory statistics
  mentor360 vacuum                            Compact the database
  mentor360 mcp                               Serve the memory tools over MCP (stdio)
  mentor360 version                           Print version

Flags:
  --user, -u   User whose records to operate on
  --llm        LLM as provider/model (google/gemini-2.5-flash,
               anthropic/claude-haiku-4-5, openrouter/openai/gpt-4o-mini)
  --db         Database path (default ~/.mentor360/memory.db)

Environment:
  MENTOR360_DB, MENTOR360_LLM, MENTOR360_LLM_EXTRACT, MENTOR360_LLM_PROFILE
  GEMINI_API_KEY / GOOGLE_API_KEY, OPENROUTER_API_KEY, ANTHROPIC_API_KEY`)
}
