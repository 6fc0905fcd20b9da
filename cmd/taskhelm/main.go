package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/taskhelm/taskhelm/config"
	"github.com/taskhelm/taskhelm/llm"
	"github.com/taskhelm/taskhelm/orchestrator"
	"github.com/taskhelm/taskhelm/toolservice"
)

func main() {
	providerFlag := flag.String("provider", "", "LLM provider (overrides config)")
	modelFlag := flag.String("model", "", "Model name (overrides config)")
	mcpURLFlag := flag.String("mcp-url", "", "MCP server URL (overrides config)")
	taskFlag := flag.String("task", "", "Run a single task and exit")
	iterationsFlag := flag.Int("max-iterations", 0, "Iteration budget (overrides config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *providerFlag != "" {
		cfg.Provider = *providerFlag
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *mcpURLFlag != "" {
		cfg.MCP.URL = *mcpURLFlag
	}
	if *iterationsFlag > 0 {
		cfg.MaxIterations = *iterationsFlag
	}

	client, err := buildClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing LLM client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx := context.Background()
	service, err := connectToolService(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to tool service: %v\n", err)
		os.Exit(1)
	}
	defer service.Close()
	fmt.Println("Connected to tool service")

	events := orchestrator.NewEventEmitter(uuid.New().String(), 256)
	go printEvents(events.Events())

	runner := orchestrator.NewTaskRunner(client, cfg.Model, service, orchestrator.Config{
		MaxIterations:  cfg.MaxIterations,
		TokenThreshold: cfg.TokenThreshold,
		ToolAttempts:   cfg.ToolAttempts,
	}, events)

	if *taskFlag != "" {
		result, err := runner.Start(ctx, *taskFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Task failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n[%s] %s\n", result.State, result.Message)
		return
	}

	runInteractive(ctx, cfg, runner)
}

func buildClient(cfg *config.Config) (*llm.Client, error) {
	if llm.FindProvider(cfg.Provider) != nil || cfg.BaseURL != "" {
		adapter, err := llm.NewOpenAIAdapter(cfg.Provider, cfg.APIKey(), cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return llm.NewClient(llm.WithProvider(cfg.Provider, adapter)), nil
	}
	adapter, err := llm.NewGollmAdapter(cfg.Provider, llm.WithModel(cfg.Model), llm.WithAPIKey(cfg.APIKey()))
	if err != nil {
		return nil, err
	}
	return llm.NewClient(llm.WithProvider(cfg.Provider, adapter)), nil
}

func connectToolService(ctx context.Context, cfg *config.Config) (*toolservice.MCPService, error) {
	if cfg.MCP.Command != "" {
		return toolservice.ConnectCommand(ctx, cfg.MCP.Command, cfg.MCP.Args)
	}
	return toolservice.ConnectStreamable(ctx, cfg.MCP.URL)
}

func runInteractive(ctx context.Context, cfg *config.Config, runner *orchestrator.TaskRunner) {
	fmt.Println("taskhelm - autonomous task agent")
	fmt.Printf("Model: %s (%s)\n", cfg.Model, cfg.Provider)
	fmt.Println("Type a task, or /help for commands. Ctrl-C interrupts a running task.")

	// First Ctrl-C requests cooperative cancellation; a second one while
	// the task is still running aborts its context outright.
	var taskAbort atomic.Value // context.CancelFunc
	var interrupted atomic.Bool

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT)
	go func() {
		for range sigs {
			switch {
			case !runner.Running():
				fmt.Println("\nUse /quit to exit")
			case interrupted.CompareAndSwap(false, true):
				fmt.Println("\nInterrupting current task (Ctrl-C again to abort)...")
				runner.Cancel()
			default:
				fmt.Println("\nAborting current task...")
				if abort, ok := taskAbort.Load().(context.CancelFunc); ok && abort != nil {
					abort()
				}
			}
		}
	}()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("\n>> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if !handleCommand(input, cfg, runner) {
				return
			}
			continue
		}

		fmt.Printf("Starting task: %s\n", input)
		taskCtx, abort := context.WithCancel(ctx)
		taskAbort.Store(abort)
		interrupted.Store(false)
		result, err := runner.Start(taskCtx, input)
		abort()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Task failed: %v\n", err)
			if strings.Contains(strings.ToLower(err.Error()), "session") ||
				strings.Contains(strings.ToLower(err.Error()), "terminated") {
				reconnect(ctx, cfg, runner)
			}
			continue
		}
		fmt.Printf("\n[%s] %s\n", result.State, result.Message)
	}
}

func handleCommand(input string, cfg *config.Config, runner *orchestrator.TaskRunner) bool {
	cmd, arg, _ := strings.Cut(input, " ")
	switch cmd {
	case "/quit", "/exit":
		return false
	case "/clear":
		runner.Reset()
		fmt.Println("Conversation history cleared")
	case "/model":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			fmt.Printf("Current model: %s\n", runner.Model())
			break
		}
		cfg.Model = arg
		runner.SetModel(arg)
		fmt.Printf("Model set to %s\n", arg)
	case "/help":
		fmt.Println("/clear         reset conversation history")
		fmt.Println("/model [name]  show or change the model")
		fmt.Println("/quit          exit")
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
	}
	return true
}

// reconnect re-establishes the tool session while preserving conversation
// memory. The tool side losing its session (a browser restart, for
// instance) should not cost the agent what it has learned so far.
func reconnect(ctx context.Context, cfg *config.Config, runner *orchestrator.TaskRunner) {
	fmt.Println("Tool session lost; reconnecting while preserving conversation memory...")
	service, err := connectToolService(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reconnect failed: %v\n", err)
		return
	}
	runner.ReconnectPreservingTranscript(service)
	fmt.Println("Reconnected with conversation memory preserved")
}

func printEvents(events <-chan orchestrator.Event) {
	for ev := range events {
		switch ev.Kind {
		case orchestrator.EventEvaluation:
			fmt.Printf("  progress: %v%% - %v\n", ev.Data["progress"], ev.Data["accomplished"])
		case orchestrator.EventSteering:
			fmt.Printf("  next: %v\n", ev.Data["next_step"])
		case orchestrator.EventToolCallStart:
			fmt.Printf("  tool: %v\n", ev.Data["tool"])
		case orchestrator.EventCompaction:
			fmt.Printf("  compacted conversation: %v -> %v estimated tokens\n",
				ev.Data["tokens_before"], ev.Data["tokens_after"])
		case orchestrator.EventAssistantText:
			if text, _ := ev.Data["text"].(string); text != "" {
				fmt.Printf("  assistant: %s\n", text)
			}
		case orchestrator.EventError:
			fmt.Printf("  error: %v\n", ev.Data["error"])
		}
	}
}
