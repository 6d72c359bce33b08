// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chatforge - interactive chat against an OpenAI-compatible API with
// cost-aware context management.
//
// Usage:
//
//	chatforge                             Start a chat with defaults
//	chatforge -model gpt-4o-mini          Use a specific chat model
//	chatforge -context-model text-embedding-ada-002
//	                                      Use similarity retrieval for context
//	chatforge -resume DIR                 Resume a session from its cache dir
//	chatforge -private                    Discard all artifacts on exit
//	chatforge -report-usage               Print the all-time usage report
//
// Interactive commands (during chat):
//
//	/history          Show the stored conversation history
//	/usage            Show this session's token usage and cost
//	/usage all        Show the all-time usage ledger
//	/quit, /q         Exit (Ctrl+C and Ctrl+D also exit cleanly)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/jeranaias/chatforge/internal/config"
	"github.com/jeranaias/chatforge/internal/model"
	"github.com/jeranaias/chatforge/internal/session"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))
)

// =============================================================================
// FLAGS
// =============================================================================

type cliArgs struct {
	configPath    string
	model         string
	contextModel  string
	assistantName string
	username      string
	cacheDir      string
	resumeDir     string
	private       bool
	reportUsage   bool
}

func parseArgs() *cliArgs {
	args := &cliArgs{}
	flag.StringVar(&args.configPath, "config", config.DefaultConfigPath(), "config file (TOML or JSON)")
	flag.StringVar(&args.model, "model", "", "chat model")
	flag.StringVar(&args.contextModel, "context-model", "", "context strategy: full-history or an embedding model")
	flag.StringVar(&args.assistantName, "assistant", "", "assistant name")
	flag.StringVar(&args.username, "user", "", "your name")
	flag.StringVar(&args.cacheDir, "cache-dir", "", "session cache directory")
	flag.StringVar(&args.resumeDir, "resume", "", "resume the session cached in this directory")
	flag.BoolVar(&args.private, "private", false, "discard all session artifacts on exit")
	flag.BoolVar(&args.reportUsage, "report-usage", false, "print the all-time usage report and exit")
	flag.Parse()
	return args
}

// buildOptions loads the config file and applies only the flags the user
// actually set, mirroring how cached defaults and CLI overrides compose.
func buildOptions(args *cliArgs) (*config.ChatOptions, error) {
	opts, err := config.Load(args.configPath)
	if err != nil {
		return nil, err
	}
	if args.model != "" {
		opts.Model = args.model
	}
	if args.contextModel != "" {
		opts.ContextModel = args.contextModel
	}
	if args.assistantName != "" {
		opts.AssistantName = args.assistantName
	}
	if args.username != "" {
		opts.Username = args.username
	}
	if args.cacheDir != "" {
		opts.CacheDir = args.cacheDir
	}
	if args.private {
		opts.PrivateMode = true
	}
	return opts, nil
}

// =============================================================================
// MAIN
// =============================================================================

func main() {
	log.SetFlags(0)
	log.SetPrefix("chatforge: ")

	args := parseArgs()

	var chat *session.Chat
	var err error
	if args.resumeDir != "" {
		chat, err = session.FromCache(args.resumeDir)
	} else {
		var opts *config.ChatOptions
		opts, err = buildOptions(args)
		if err == nil {
			chat, err = session.New(opts)
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	defer chat.Close()

	if args.reportUsage {
		report, err := chat.ReportUsage(session.ScopeAllTime)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Print(report)
		return
	}

	// External interruption must run the same orderly teardown as a
	// normal exit: flush the ledger, then persist or clear the cache.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		chat.Close()
		os.Exit(0)
	}()

	runREPL(chat)
}

// =============================================================================
// REPL
// =============================================================================

func runREPL(chat *session.Chat) {
	opts := chat.Options()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	if interactive {
		fmt.Printf("%s %s\n\n",
			assistantStyle.Render(opts.AssistantName+">"),
			chat.InitialGreeting())
	}

	prompt := opts.Username + "> "
	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			// Ctrl+C / Ctrl+D: exit through the deferred teardown.
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return
			}
			log.Printf("input error: %v", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := handleCommand(chat, input); quit {
				return
			}
			continue
		}

		respond(chat, input)
	}
}

// respond streams one reply to stdout.
func respond(chat *session.Chat, input string) {
	opts := chat.Options()

	stream, err := chat.RespondUserPrompt(context.Background(), input)
	if err != nil {
		fmt.Println(errorStyle.Render(chat.ConnectionErrorMessage()))
		log.Printf("request failed: %v", err)
		return
	}

	fmt.Printf("%s ", assistantStyle.Render(opts.AssistantName+">"))
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Println()
			fmt.Println(errorStyle.Render(chat.ConnectionErrorMessage()))
			log.Printf("stream failed: %v", err)
			return
		}
		fmt.Print(fragment)
	}
	fmt.Print("\n\n")
}

// handleCommand runs an interactive /command. Returns true to exit.
func handleCommand(chat *session.Chat, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true

	case "/usage":
		scope := session.ScopeSession
		if len(fields) > 1 && fields[1] == "all" {
			scope = session.ScopeAllTime
		}
		report, err := chat.ReportUsage(scope)
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		fmt.Println(report)

	case "/history":
		printHistory(chat)

	case "/help", "/h":
		fmt.Println(infoStyle.Render("Commands: /history, /usage [all], /quit"))

	default:
		fmt.Println(infoStyle.Render("Unknown command. Try /help."))
	}
	return false
}

// printHistory renders the stored conversation as markdown.
func printHistory(chat *session.Chat) {
	msgs, err := chat.LoadHistory(context.Background())
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		return
	}
	if len(msgs) == 0 {
		fmt.Println(infoStyle.Render("No history yet."))
		return
	}

	opts := chat.Options()
	var md strings.Builder
	for _, m := range msgs {
		name := opts.Username
		if m.Role == model.RoleAssistant {
			name = opts.AssistantName
		}
		md.WriteString(fmt.Sprintf("**%s**: %s\n\n", name, m.Content))
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(md.String())
		return
	}
	out, err := renderer.Render(md.String())
	if err != nil {
		fmt.Print(md.String())
		return
	}
	fmt.Print(out)
}
