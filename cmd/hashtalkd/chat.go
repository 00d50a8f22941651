package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/hashtalk-dev/hashtalk/internal/agent"
	"github.com/hashtalk-dev/hashtalk/internal/history"
	"github.com/hashtalk-dev/hashtalk/internal/tools"
	"github.com/hashtalk-dev/hashtalk/pkg/config"
	"github.com/hashtalk-dev/hashtalk/pkg/observability"
)

func newChatCmd() *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an in-process agent from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(threadID)
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "resume an existing thread id")
	return cmd
}

func runChat(threadID string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	observability.InitMetrics()

	sessions, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	llm, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	summarizer := history.NewLLMSummarizer(llm, cfg.Model)
	controller := agent.NewController(agent.Config{
		Store:    sessions,
		Provider: llm,
		Registry: tools.NewDefaultRegistry(),
		Compactor: history.NewCompactor(sessions, summarizer, history.CompactorConfig{
			ThresholdTurns: cfg.History.ThresholdTurns,
			KeepTurns:      cfg.History.KeepTurns,
		}),
		Titles: history.NewTitleGenerator(sessions, llm, cfg.Model),
		Model:  cfg.Model,
	})

	if threadID == "" {
		threadID = uuid.NewString()
	}
	fmt.Printf("hashtalk %s (thread %s). Ctrl-D to quit.\n", Version, threadID)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("you> ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		runReplTurn(controller, threadID, input)
	}
}

// runReplTurn streams one turn to the terminal, showing tool activity inline.
func runReplTurn(controller *agent.Controller, threadID, input string) {
	printed := false
	for ev := range controller.Run(context.Background(), threadID, input) {
		switch ev.Type {
		case agent.EventToken:
			fmt.Print(ev.Content)
			printed = true
		case agent.EventToolCall:
			if printed {
				fmt.Println()
				printed = false
			}
			fmt.Printf("  [%s] %s\n", ev.Tool, ev.Args)
		case agent.EventToolResult:
			fmt.Printf("  [%s] -> %s\n", ev.Tool, ev.Result)
		case agent.EventMessage:
			// Tokens already rendered the content when the turn streamed;
			// clarifications and digests arrive only here.
			if !printed {
				fmt.Print(ev.Content)
			}
		case agent.EventError:
			log.Printf("[chat] turn failed: %s", ev.Content)
		case agent.EventDone:
			fmt.Println()
		}
	}
}
