package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hurttlocker/chartex/internal/config"
	"github.com/hurttlocker/chartex/internal/document"
	"github.com/hurttlocker/chartex/internal/index"
	"github.com/hurttlocker/chartex/internal/llm"
	"github.com/hurttlocker/chartex/internal/mcp"
	"github.com/hurttlocker/chartex/internal/pipeline"
	"github.com/hurttlocker/chartex/internal/store"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(os.Args[2:])
	case "records":
		err = runRecords(os.Args[2:])
	case "categories":
		err = runCategories(os.Args[2:])
	case "clear-cache":
		err = runClearCache(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("chartex %s\n", version)
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

func printUsage() {
	fmt.Println(`chartex — clinical document segmentation and record indexing

Usage:
  chartex process --owner <id> --file <name> --category <name>
  chartex records --owner <id> [query] [--category <name>] [--file <name>] [--limit N]
  chartex categories --file <name>
  chartex clear-cache --owner <id>
  chartex stats
  chartex config
  chartex mcp
  chartex version

Common flags:
  --source-dir <dir>   directory of decoded page files (or CHARTEX_SOURCE_DIR)
  --db <path>          cache store database (or CHARTEX_DB_PATH)
  --index-db <path>    record index database (or CHARTEX_INDEX_DB)
  --llm <provider>     text-generation provider: google, openrouter`)
}

// flags holds the hand-parsed common flag values plus positionals.
type flags struct {
	owner      string
	file       string
	category   string
	limit      int
	sourceDir  string
	dbPath     string
	indexPath  string
	llmName    string
	positional []string
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			return args[i], nil
		}

		var err error
		switch arg {
		case "--owner":
			f.owner, err = next()
		case "--file":
			f.file, err = next()
		case "--category":
			f.category, err = next()
		case "--limit":
			var v string
			if v, err = next(); err == nil {
				f.limit, err = strconv.Atoi(v)
			}
		case "--source-dir":
			f.sourceDir, err = next()
		case "--db":
			f.dbPath, err = next()
		case "--index-db":
			f.indexPath, err = next()
		case "--llm":
			f.llmName, err = next()
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unknown flag: %s", arg)
			}
			f.positional = append(f.positional, arg)
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

// deps bundles everything a subcommand needs, opened from resolved
// configuration. Close releases the databases.
type deps struct {
	cfg    config.ResolvedConfig
	store  store.Store
	index  *index.SQLiteIndex
	engine *pipeline.Engine
}

func (d *deps) Close() {
	if d.store != nil {
		d.store.Close()
	}
	if d.index != nil {
		d.index.Close()
	}
}

func openDeps(f *flags) (*deps, error) {
	cfg, err := config.Resolve(config.ResolveOptions{
		CLIDBPath:    f.dbPath,
		CLIIndexPath: f.indexPath,
		CLISourceDir: f.sourceDir,
		CLILLM:       f.llmName,
	})
	if err != nil {
		return nil, err
	}

	sourceDir := cfg.SourceDir.Value
	if sourceDir == "" {
		sourceDir = "."
	}
	source := &document.DirSource{Root: sourceDir}

	st, err := store.NewStore(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	idx, err := index.NewSQLiteIndex(index.Config{DBPath: cfg.IndexDBPath.Value})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}

	// The delegate is optional: without one, category enumeration
	// degrades to a soft error and everything else still works.
	var provider llm.Provider
	if cfg.LLMProvider.Value != "" {
		provider, err = llm.NewProvider(llm.Config{
			Provider: cfg.LLMProvider.Value,
			Model:    cfg.LLMModel.Value,
			APIKey:   cfg.LLMAPIKey.Value,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (category enumeration disabled)\n", err)
			provider = nil
		}
	}

	engine := pipeline.NewEngine(source, st, idx, provider, pipeline.Options{
		FrequencyThreshold: cfg.FrequencyThreshold,
		MaxLinesAfterDate:  cfg.MaxLinesAfterDate,
	})

	return &deps{cfg: cfg, store: st, index: idx, engine: engine}, nil
}

func runProcess(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.owner == "" || f.file == "" || f.category == "" {
		return fmt.Errorf("usage: chartex process --owner <id> --file <name> --category <name>")
	}

	d, err := openDeps(f)
	if err != nil {
		return err
	}
	defer d.Close()

	spec := d.cfg.CategoryByName(f.category)
	if spec == nil {
		return fmt.Errorf("unknown category %q (configured: %s)", f.category, categoryNames(d.cfg.Categories))
	}

	result, err := d.engine.ProcessCategory(context.Background(), f.owner, f.file, *spec)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func runRecords(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.owner == "" {
		return fmt.Errorf("usage: chartex records --owner <id> [query]")
	}

	d, err := openDeps(f)
	if err != nil {
		return err
	}
	defer d.Close()

	opts := index.QueryOpts{
		Query:      strings.Join(f.positional, " "),
		Category:   f.category,
		SourceFile: f.file,
		Limit:      f.limit,
	}
	result, err := d.index.Query(context.Background(), f.owner, opts)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func runCategories(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.file == "" {
		return fmt.Errorf("usage: chartex categories --file <name>")
	}

	d, err := openDeps(f)
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.engine.Categories(context.Background(), f.file)
	if err != nil {
		return err
	}
	if result.CategoryErr != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", result.CategoryErr)
	}

	return printJSON(result)
}

func runClearCache(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if f.owner == "" {
		return fmt.Errorf("usage: chartex clear-cache --owner <id>")
	}

	d, err := openDeps(f)
	if err != nil {
		return err
	}
	defer d.Close()

	cleared, err := d.engine.ClearCache(context.Background(), f.owner)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d cached artifact(s) for %s\n", cleared, f.owner)
	return nil
}

func runStats(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	d, err := openDeps(f)
	if err != nil {
		return err
	}
	defer d.Close()

	st, err := d.store.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Cache store: %d key(s), %d byte(s) stored, db %d byte(s)\n",
		st.Keys, st.TotalBytes, st.DBSizeBytes)
	return nil
}

func runConfig(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(config.ResolveOptions{
		CLIDBPath:    f.dbPath,
		CLIIndexPath: f.indexPath,
		CLISourceDir: f.sourceDir,
		CLILLM:       f.llmName,
	})
	if err != nil {
		return err
	}
	if cfg.LLMAPIKey.Value != "" {
		cfg.LLMAPIKey.Value = "(set)"
	}
	return printJSON(cfg)
}

func runMCP(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	d, err := openDeps(f)
	if err != nil {
		return err
	}
	defer d.Close()

	s := mcp.NewServer(mcp.ServerConfig{
		Engine:     d.engine,
		Index:      d.index,
		Categories: d.cfg.Categories,
		Version:    version,
	})
	return mcp.Serve(s)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func categoryNames(specs []config.CategorySpec) string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}
