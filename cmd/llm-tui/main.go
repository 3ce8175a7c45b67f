package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ducks/llm-tui/agent"
	"github.com/ducks/llm-tui/config"
	"github.com/ducks/llm-tui/llm"
	"github.com/ducks/llm-tui/session"
	"github.com/ducks/llm-tui/tools"
)

func main() {
	providerFlag := flag.String("p", "", "Provider to use: ollama, anthropic, bedrock, openai, or gemini")
	modelFlag := flag.String("model", "", "Model id (defaults to the provider's configured model)")
	resumeFlag := flag.String("r", "", "Resume a session by id")
	listModelsFlag := flag.Bool("list-models", false, "List the selected provider's models and exit")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log, err := newLogger(*debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %+v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	registry := llm.NewRegistry(ctx, cfg, log)

	providerName := *providerFlag
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	providerID, err := llm.ParseProviderID(providerName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	provider, err := registry.Get(providerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}

	if *listModelsFlag {
		models, err := provider.ListModels(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing models: %+v\n", err)
			os.Exit(1)
		}
		for _, m := range models {
			fmt.Println(m.ID)
		}
		return
	}

	model := *modelFlag
	if model == "" {
		model = cfg.Model(providerName)
	}

	var sess *session.Session
	if *resumeFlag != "" {
		sess, err = session.Load(*resumeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session %s: %+v\n", *resumeFlag, err)
			os.Exit(1)
		}
		fmt.Printf("Resuming session %s\n", sess.ID)
	} else {
		sess, err = session.New(providerName, model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session: %+v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Starting session %s (%s / %s)\n", sess.ID, providerName, model)
	}

	executor, err := tools.NewExecutor(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing tool executor: %+v\n", err)
		os.Exit(1)
	}

	engine := agent.New(sess, provider, executor, cfg, log)
	if err := runREPL(ctx, engine, sess); err != nil {
		fmt.Fprintf(os.Stderr, "Stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

// runREPL is the foreground control loop. It alternates between reading user
// input while idle and polling the engine's event queue while a turn is in
// flight, so streamed text renders as it arrives.
func runREPL(ctx context.Context, engine *agent.Engine, sess *session.Session) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Type your prompt, or /quit to exit.")

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return sess.Save()
		}

		if err := engine.SubmitTurn(ctx, line); err != nil {
			fmt.Printf("Error: %+v\n", err)
			continue
		}

		if err := driveTurn(ctx, engine, reader); err != nil {
			return err
		}
		if err := sess.Save(); err != nil {
			return err
		}
	}
}

// driveTurn pumps events until the engine returns to idle, prompting for
// confirmation whenever a tool call is pending.
func driveTurn(ctx context.Context, engine *agent.Engine, reader *bufio.Reader) error {
	printed := 0
	for engine.State() != agent.StateIdle {
		engine.Pump()

		// Print only the part of the buffer that is new since last pass.
		buf := engine.Buffer()
		if len(buf) > printed {
			fmt.Print(buf[printed:])
			printed = len(buf)
		} else if len(buf) < printed {
			printed = len(buf)
		}

		if call := engine.Pending(); call != nil {
			fmt.Printf("\nTool call: %s\nAllow? [y/N] ", agent.FormatToolCall(call))
			answer, err := reader.ReadString('\n')
			if err != nil {
				engine.Abandon()
				return nil
			}
			answer = strings.ToLower(strings.TrimSpace(answer))
			if answer == "y" || answer == "yes" {
				if err := engine.Approve(ctx); err != nil {
					fmt.Printf("Error: %+v\n", err)
				}
			} else {
				if err := engine.Reject(ctx); err != nil {
					fmt.Printf("Error: %+v\n", err)
				}
			}
			continue
		}

		time.Sleep(20 * time.Millisecond)
	}
	fmt.Println()
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
