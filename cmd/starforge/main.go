// ABOUTME: CLI entry point: loads config, wires the provider gateway, state
// ABOUTME: store, and engine, then runs or resumes the pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/starforge/starforge/config"
	"github.com/starforge/starforge/llm"
	"github.com/starforge/starforge/pipeline"
	"github.com/starforge/starforge/prompt"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("starforge", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	resume := fs.Bool("resume", false, "process only existing unfinished items, creating no new ones")
	status := fs.Bool("status", false, "print state store counts and exit")
	serve := fs.String("serve", "", "address for the status HTTP server (e.g. :8080)")
	role := fs.String("role", "", "limit the run to one role")
	question := fs.Int("question", -1, "limit the run to one question index")
	industry := fs.String("industry", "", "limit the run to one industry")
	stage := fs.String("stage", "", "stop items after this stage (subprompt, star_answer, conversational)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	loadDotEnv(".env")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if *serve == "" {
		*serve = cfg.Serve
	}

	store, err := pipeline.OpenStateStore(cfg.StateDB)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer store.Close()

	if *status {
		return printStatus(store)
	}

	client, err := buildClient(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer client.Close()

	engine, err := buildEngine(cfg, client, store)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if *stage != "" {
		until, err := pipeline.ParseStage(*stage)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 2
		}
		engine.UntilStage = until
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve != "" {
		srv := &http.Server{Addr: *serve, Handler: pipeline.NewStatusServer(store)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintln(os.Stderr, "status server:", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Fprintln(os.Stdout, "status server listening on", *serve)
	}

	filter := pipeline.NewFilter()
	filter.Role = *role
	filter.QuestionIndex = *question
	filter.Industry = *industry

	var summary *pipeline.RunSummary
	if *resume {
		summary, err = engine.Resume(ctx, filter)
	} else {
		dims := pipeline.Dimensions{
			Roles:      cfg.Roles,
			Questions:  cfg.Questions,
			Industries: cfg.Industries,
			Variants:   cfg.Variants,
		}
		summary, err = engine.Run(ctx, dims, filter)
	}

	printSummary(os.Stdout, summary)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run ended early:", err)
		return 1
	}
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

// buildClient constructs one adapter per configured provider. Models come
// from the per-stage routes, so adapters get no default model.
func buildClient(cfg *config.Config) (*llm.Client, error) {
	timeout := llm.DefaultAdapterTimeout()
	timeout.Request = cfg.Request.Timeout()

	var opts []llm.ClientOption
	for name, p := range cfg.Providers {
		apiKey, err := p.APIKey()
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}

		var adapter llm.ProviderAdapter
		switch p.Kind {
		case "gemini":
			geminiOpts := []llm.GeminiOption{llm.WithGeminiTimeout(timeout)}
			if p.BaseURL != "" {
				geminiOpts = append(geminiOpts, llm.WithGeminiBaseURL(p.BaseURL))
			}
			adapter = llm.NewGeminiAdapter(apiKey, "", geminiOpts...)
		case "anthropic":
			anthropicOpts := []llm.AnthropicOption{llm.WithAnthropicTimeout(timeout)}
			if p.BaseURL != "" {
				anthropicOpts = append(anthropicOpts, llm.WithAnthropicBaseURL(p.BaseURL))
			}
			adapter = llm.NewAnthropicAdapter(apiKey, "", anthropicOpts...)
		case "openai":
			openaiOpts := []llm.OpenAIOption{llm.WithOpenAITimeout(timeout)}
			if p.BaseURL != "" {
				openaiOpts = append(openaiOpts, llm.WithOpenAIBaseURL(p.BaseURL))
			}
			adapter = llm.NewOpenAIAdapter(apiKey, "", openaiOpts...)
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", name, p.Kind)
		}
		opts = append(opts, llm.WithProvider(name, adapter))
	}
	return llm.NewClient(opts...), nil
}

func buildEngine(cfg *config.Config, client *llm.Client, store *pipeline.StateStore) (*pipeline.Engine, error) {
	artifacts, err := pipeline.NewFSArtifactStore(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	routes := make(map[pipeline.Stage][]pipeline.ProviderRoute, len(cfg.Stages))
	for name, chain := range cfg.Stages {
		stage, err := pipeline.ParseStage(name)
		if err != nil {
			return nil, err
		}
		for _, sp := range chain {
			routes[stage] = append(routes[stage], pipeline.ProviderRoute{
				Provider: sp.Provider,
				Model:    sp.Model,
			})
		}
	}

	policy := pipeline.NewFallbackPolicy(client, cfg.Retry.MaxRetries)
	policy.Backoff = pipeline.BackoffConfig{
		BaseDelay: cfg.Retry.BaseDelay(),
		MaxDelay:  cfg.Retry.MaxDelay(),
	}

	executor := &pipeline.StageExecutor{
		Store:     store,
		Artifacts: artifacts,
		Builder: &pipeline.StageBuilder{
			Renderer:    prompt.NewFileRenderer(cfg.Templates),
			Artifacts:   artifacts,
			MaxTokens:   cfg.Request.MaxTokens,
			Temperature: cfg.Request.Temperature,
		},
		Policy: policy,
		Routes: routes,
	}

	printer := &eventPrinter{out: os.Stdout}
	return pipeline.NewEngine(store, executor, printer.handle), nil
}

func printStatus(store *pipeline.StateStore) int {
	counts, err := store.Summary()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Fprintf(os.Stdout, "%d items tracked\n", total)
	for _, status := range []pipeline.Status{
		pipeline.StatusPending, pipeline.StatusInProgress,
		pipeline.StatusSucceeded, pipeline.StatusFailed,
	} {
		fmt.Fprintf(os.Stdout, "  %-12s %d\n", status, counts[status])
	}
	return 0
}
