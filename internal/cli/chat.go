package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suda-labs/suda/internal/gateway"
	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/session"
	"github.com/suda-labs/suda/internal/telemetry"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive conversation session",
		Long: "Start a session against the item catalog and talk turn by turn.\n" +
			"Slash commands: /hover W, /dontknow W, /again W, /lookup W MS,\n" +
			"/confidence W LEVEL, /known W..., /end.",
		Run: runChat,
	}

	cmd.Flags().String("catalog", "", "Item catalog snapshot (JSON, required)")
	cmd.Flags().String("topic", "", "Topic id (see 'suda topics')")
	cmd.MarkFlagRequired("catalog")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	catalogPath, _ := cmd.Flags().GetString("catalog")
	topicID, _ := cmd.Flags().GetString("topic")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	catalog, err := item.LoadCatalog(catalogPath)
	if err != nil {
		exitErr("load catalog", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	ctrl, err := session.Start(ctx, session.Options{
		Config:  cfg,
		Catalog: catalog,
		Store:   store,
		TopicID: topicID,
		Logger:  logger,
	})
	if err != nil {
		exitErr("start session", err)
	}

	fmt.Printf("session %s started. Type your reply, or /end to finish.\n\n", ctrl.ID())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := handleCommand(cmd, ctrl, line); done {
				return
			}
			continue
		}

		out, err := ctrl.SubmitTurn(ctx, session.TurnInput{Text: line})
		if err != nil {
			if gateway.Recoverable(err) {
				fmt.Printf("provider unavailable (%v) - your message was not consumed, try again\n", err)
				continue
			}
			exitErr("turn", err)
		}
		printTurn(out)
	}
}

func handleCommand(cmd *cobra.Command, ctrl *session.Controller, line string) bool {
	ctx := cmd.Context()
	fields := strings.Fields(line)

	switch fields[0] {
	case "/end":
		wrap, err := ctrl.End(ctx)
		if err != nil {
			exitErr("end session", err)
		}
		fmt.Printf("\nstrengths: %s\n", strings.Join(wrap.Strengths, ", "))
		fmt.Printf("reinforce: %s\n", strings.Join(wrap.Reinforce, ", "))
		if wrap.SuggestedCard != nil {
			fmt.Printf("suggested card: %s - %s\n", wrap.SuggestedCard.Front, wrap.SuggestedCard.Back)
		}
		return true
	case "/hover", "/dontknow", "/again":
		if len(fields) < 2 {
			fmt.Printf("usage: %s WORD\n", fields[0])
			return false
		}
		types := map[string]string{
			"/hover":    telemetry.EventHover,
			"/dontknow": telemetry.EventDontKnow,
			"/again":    telemetry.EventPracticeAgain,
		}
		if err := ctrl.LogEvent(ctx, session.Event{Type: types[fields[0]], Lexeme: fields[1]}); err != nil {
			fmt.Printf("event failed: %v\n", err)
		}
	case "/lookup":
		if len(fields) < 3 {
			fmt.Println("usage: /lookup WORD MS")
			return false
		}
		ms, err := strconv.Atoi(fields[2])
		if err != nil {
			fmt.Println("usage: /lookup WORD MS")
			return false
		}
		if err := ctrl.LogEvent(ctx, session.Event{Type: telemetry.EventLookup, Lexeme: fields[1], DurationMS: ms}); err != nil {
			fmt.Printf("event failed: %v\n", err)
		}
	case "/confidence":
		if len(fields) < 3 {
			fmt.Println("usage: /confidence WORD confident|unsure|guessing")
			return false
		}
		if err := ctrl.LogEvent(ctx, session.Event{Type: telemetry.EventConfidence, Lexeme: fields[1], Level: fields[2]}); err != nil {
			fmt.Printf("event failed: %v\n", err)
		}
	case "/known":
		if len(fields) < 2 {
			fmt.Println("usage: /known WORD...")
			return false
		}
		if err := ctrl.LogEvent(ctx, session.Event{Type: telemetry.EventWordsKnown, Lexemes: fields[1:]}); err != nil {
			fmt.Printf("event failed: %v\n", err)
		}
	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

func printTurn(out *session.TurnOutput) {
	fmt.Printf("\n%s\n", out.Response.AssistantReply)
	if out.Response.FollowUpQuestion != "" {
		fmt.Printf("%s\n", out.Response.FollowUpQuestion)
	}
	if fb := out.Response.MicroFeedback; fb != nil {
		if fb.ContentTargetLang != "" {
			fmt.Printf("  [%s] %s\n", fb.Type, fb.ContentTargetLang)
		}
		if fb.ContentGlossLang != "" {
			fmt.Printf("  [%s] %s\n", fb.Type, fb.ContentGlossLang)
		}
	}
	if out.Response.SuggestedUserIntent != "" {
		fmt.Printf("  (try: %s)\n", out.Response.SuggestedUserIntent)
	}
	for _, lex := range out.NewWords {
		fmt.Printf("  new word: %s - %s\n", lex, out.Response.WordGlosses[lex])
	}
	if out.Annotated {
		fmt.Printf("  (note: reply may use words outside your level: %s)\n", out.Violation)
	}
	fmt.Println()
}
