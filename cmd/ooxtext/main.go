// Package main is the ooxtext CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/ooxtext/internal/cli"
	"github.com/hyperjump/ooxtext/internal/config"
	"github.com/hyperjump/ooxtext/internal/docx"
	"github.com/hyperjump/ooxtext/internal/extract"
	"github.com/hyperjump/ooxtext/internal/indexer"
	"github.com/hyperjump/ooxtext/internal/keyword"
	"github.com/hyperjump/ooxtext/internal/models"
	"github.com/hyperjump/ooxtext/internal/server"
	"github.com/hyperjump/ooxtext/internal/storage"
	"github.com/hyperjump/ooxtext/internal/watcher"
	"github.com/hyperjump/ooxtext/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/ooxtext/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "extract":
		runExtract()
	case "compose":
		runCompose()
	case "server":
		runServer()
	case "import":
		runImport()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "export":
		runExport()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("ooxtext version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// resolveKind picks the package kind for the extract command. An explicit
// --type (short name or content type) wins over the file extension.
func resolveKind(typeFlag, path string) extract.Kind {
	if typeFlag != "" {
		if k := extract.ParseKind(strings.TrimPrefix(strings.ToLower(typeFlag), ".")); k != extract.KindUnsupported {
			return k
		}
		return extract.Classify(typeFlag)
	}
	return extract.KindForExtension(filepath.Ext(path))
}

// openInput opens path for reading; "-" (or "") is stdin.
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// extractTo extracts the package read from r and writes the result to w.
func extractTo(w io.Writer, r io.Reader, source string, kind extract.Kind, format cli.OutputFormat, logger *zap.Logger) error {
	extractor := extract.NewExtractor(
		extract.WithLogger(logger),
		extract.WithMaxEntrySize(config.DefaultMaxEntryBytes),
	)
	text, err := extractor.ExtractKind(r, kind)
	if err != nil {
		return err
	}
	return cli.WriteExtraction(w, &cli.Extraction{Source: source, Kind: kind.String(), Text: text}, format)
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	typeFlag := fs.String("type", "", "package type: docx, xlsx, pptx or a content type (default: from file extension)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: ooxtext extract [--type docx|xlsx|pptx] [--output text|json] <file|->")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format, err := cli.ParseOutputFormat(*outputFormat, cli.OutputText, cli.OutputJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := utils.NewCLILogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	in, err := openInput(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	source := path
	if source == "-" {
		source = ""
	}
	if err := extractTo(os.Stdout, in, source, resolveKind(*typeFlag, path), format, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
}

// composeTo reads plain text from r and writes a word-processing package to w.
// CRLF and CR line endings become paragraph breaks.
func composeTo(w io.Writer, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return docx.Write(w, utils.NormalizeNewlines(string(data)))
}

// composeOutputPath returns where compose writes: out when set, else the
// input name with a .docx extension, else "" for stdout.
func composeOutputPath(out, in string) string {
	if out != "" {
		return out
	}
	if in == "" || in == "-" {
		return ""
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".docx"
}

func runCompose() {
	fs := flag.NewFlagSet("compose", flag.ExitOnError)
	out := fs.String("o", "", "output file (default: input name with .docx, or stdout when reading stdin)")
	_ = fs.Parse(os.Args[2:])

	in := fs.Arg(0)
	r, err := openInput(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	target := composeOutputPath(*out, in)
	if target == "" || target == "-" {
		if err := composeTo(os.Stdout, r); err != nil {
			fmt.Fprintf(os.Stderr, "Compose failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	f, err := os.Create(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
		os.Exit(1)
	}
	if err := composeTo(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		fmt.Fprintf(os.Stderr, "Compose failed: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", target)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (directory changes, file imports, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	library := components.Library
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := library.ImportFile(context.Background(), path); err != nil {
				logger.Warn("watch import failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := library.DeleteFile(context.Background(), path); err != nil {
				logger.Warn("watch delete by path failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Extractor,
		library,
		cfg,
		logger,
		watchSvc,
		resolvedConfigPath,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ooxtext search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
When an exact search finds nothing, it is retried once with fuzzy matching.

Examples:
  ooxtext search quarterly revenue
  ooxtext search --kind xlsx revenue        # spreadsheets only
  ooxtext search --fuzzy revenu             # typo-tolerant search
  ooxtext search --output json budget       # structured JSON for other apps
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig returns search.default_limit from the config at
// path, or models.DefaultSearchLimit when the config cannot be loaded.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return models.DefaultSearchLimit
	}
	return cfg.Search.DefaultLimit
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

type searchFunc func(*models.SearchQuery) (*models.SearchResponse, error)

// searchWithFuzzyRetry runs q and, when nothing matches and fuzzy matching was
// off, runs it again with fuzzy matching. The retry result is used only if it
// has hits.
func searchWithFuzzyRetry(search searchFunc, q *models.SearchQuery) (*models.SearchResponse, error) {
	response, err := search(q)
	if err != nil {
		return nil, err
	}
	if q.FuzzyEnabled || response.Total > 0 {
		return response, nil
	}
	retry := *q
	retry.FuzzyEnabled = true
	fuzzyResponse, fuzzyErr := search(&retry)
	if fuzzyErr == nil && fuzzyResponse.Total > 0 {
		fuzzyResponse.AutoFuzzy = true
		return fuzzyResponse, nil
	}
	return response, nil
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	defaultLimit := searchLimitDefaultFromConfig(configPathFromArgs(searchArgs, defaultConfigPath))

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	limit := fs.Int("limit", defaultLimit, "number of results")
	kind := fs.String("kind", "", "restrict results to one kind: docx, xlsx or pptx")
	fuzzyEnabled := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat, cli.OutputText, cli.OutputCompact, cli.OutputJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	searchQuery := &models.SearchQuery{
		Query:        queryStr,
		Limit:        *limit,
		Kind:         *kind,
		FuzzyEnabled: *fuzzyEnabled,
	}

	var search searchFunc
	if *serverURL != "" {
		// Use HTTP API when server is running (avoids Bleve/SQLite lock conflict).
		search = func(q *models.SearchQuery) (*models.SearchResponse, error) {
			return searchViaHTTP(*serverURL, q)
		}
	} else {
		cfg, _, err := loadConfig(*configPathFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewCLILogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		search = func(q *models.SearchQuery) (*models.SearchResponse, error) {
			return components.Library.Search(context.Background(), q)
		}
	}

	response, err := searchWithFuzzyRetry(search, searchQuery)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat, cli.OutputText, cli.OutputJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *cli.Status
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewCLILogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status, err = directStatus(context.Background(), components.Library, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// directStatus builds a status report from an opened library.
func directStatus(ctx context.Context, library *indexer.Indexer, cfg *config.Config) (*cli.Status, error) {
	stats, err := library.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status := &cli.Status{
		Documents:        stats.Documents,
		Revisions:        stats.Revisions,
		Indexed:          stats.Indexed,
		WatchDirectories: cfg.Watch.Directories,
		Config: &cli.StatusConfig{
			DatabasePath:   cfg.Storage.DatabasePath,
			BleveIndexPath: cfg.Storage.BleveIndexPath,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			WriteSidecar:   cfg.Export.WriteSidecar,
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*cli.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s cli.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// openLibrary loads config and opens storage and the keyword index for a
// one-shot command. The caller must Close the returned components.
func openLibrary(configPath string) (*Components, *config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return components, cfg, logger
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: ooxtext import [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}

	components, cfg, logger := openLibrary(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if info.IsDir() {
		n, err := components.Library.ImportDirectory(ctx, path, cfg.Watch.Extensions)
		fmt.Printf("Imported %d file(s) from %s\n", n, path)
		if err != nil {
			fmt.Printf("Some files failed:\n%v\n", err)
			os.Exit(1)
		}
		return
	}
	doc, err := components.Library.ImportFile(ctx, path)
	if err != nil {
		fmt.Printf("Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document imported: %s\n", doc.ID)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: ooxtext delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, _, logger := openLibrary(*configPath)
	defer logger.Sync()
	defer components.Close()

	if err := components.Library.Delete(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	out := fs.String("o", "", "output file, or - for stdout (default: document title with .docx)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: ooxtext export [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, _, logger := openLibrary(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	if *out == "-" {
		if _, err := components.Library.ExportDocx(ctx, docID, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var buf bytes.Buffer
	doc, err := components.Library.ExportDocx(ctx, docID, &buf)
	if err != nil {
		fmt.Printf("Export failed: %v\n", err)
		os.Exit(1)
	}
	target := *out
	if target == "" {
		target = indexer.ExportFileName(doc)
	}
	if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
		fmt.Printf("Failed to write %s: %v\n", target, err)
		os.Exit(1)
	}
	fmt.Printf("Exported %s to %s\n", docID, target)
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: ooxtext watch <add|remove|list> [path]")
		fmt.Println("  ooxtext watch add <path>     Add directory to watch")
		fmt.Println("  ooxtext watch remove <path>  Remove directory from watch")
		fmt.Println("  ooxtext watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: ooxtext watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: ooxtext watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	KeywordIndex keyword.KeywordIndex
	Extractor    *extract.Extractor
	Library      *indexer.Indexer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	extractor := extract.NewExtractor(
		extract.WithLogger(logger),
		extract.WithMaxEntrySize(cfg.Extract.MaxEntryBytes),
	)
	idxOpts := []indexer.IndexerOption{
		indexer.WithSearchLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
	}
	if cfg.Export.WriteSidecar {
		idxOpts = append(idxOpts, indexer.WithSidecar(cfg.Export.SidecarExtension))
	}
	if debug && logger != nil {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	library := indexer.NewIndexer(store, keywordIndex, extractor, idxOpts...)

	return &Components{
		Storage:      store,
		KeywordIndex: keywordIndex,
		Extractor:    extractor,
		Library:      library,
	}, nil
}

func printUsage() {
	fmt.Println(`ooxtext - Plain text from Office Open XML documents, and back

Usage:
  ooxtext extract [flags] <file|->       Print the text of a .docx, .xlsx or .pptx
  ooxtext compose [flags] [file|-]       Write plain text as a .docx
  ooxtext server [flags]                 Start the HTTP server
  ooxtext import [flags] <file|dir>      Import documents into the library
  ooxtext search [flags] <query>         Search the library
  ooxtext delete [flags] <id>            Delete a library document
  ooxtext export [flags] <id>            Save a library document as .docx
  ooxtext status [flags]                 Show library/storage/index status
  ooxtext watch <add|remove|list>        Manage watched directories
  ooxtext version                        Show version
  ooxtext help                           Show this help

Extract Flags:
  --type string      docx, xlsx, pptx or a content type (default: from file extension)
  --output string    Output format: text or json (default: text)

Compose Flags:
  -o string          Output file (default: input name with .docx, or stdout when reading stdin)

Server Flags:
  --config string    Config file path (default: /usr/local/etc/ooxtext/config.yaml)
  --debug            Enable debug logging (directory changes, file imports, etc.)

Search Flags:
  --config string    Config file path (for direct storage mode; also used for the default limit)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --limit int        Number of results (default from config, or 10)
  --kind string      Restrict to docx, xlsx or pptx
  --fuzzy            Enable fuzzy matching for typo tolerance (default: false)
  --output string    Output format: text, compact or json (default: text)

Export Flags:
  --config string    Config file path
  -o string          Output file, or - for stdout (default: document title with .docx)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  ooxtext extract report.docx
  ooxtext extract --type xlsx --output json - < budget.bin
  ooxtext compose -o notes.docx notes.txt
  ooxtext server
  ooxtext import ~/Documents/reports
  ooxtext search --kind pptx roadmap
  ooxtext export -o plan.docx 3f2a9c
  ooxtext status --output json
  ooxtext watch add /path/to/docs
  ooxtext watch list`)
}
