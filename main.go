package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"burakai/chat"
	"burakai/db"
	"burakai/identity"
	"burakai/llm"
	"burakai/realtime"
	"burakai/utils"
)

var (
	version = "0.1.0"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	noSync := flag.Bool("no-sync", false, "Run single-user even when a sync backend is configured")
	flag.Parse()

	if *showVersion {
		fmt.Printf("BurakAI v%s\n", version)
		os.Exit(0)
	}

	config := utils.LoadConfig()

	logger, closeLog, err := utils.NewLogger(utils.GetLogPath(), config.Log.Level)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	logger.Info().Str("version", version).Msg("starting BurakAI")

	// Missing backend credentials block startup with a plain report instead
	// of failing later mid-request.
	if err := config.Validate(); err != nil {
		var missing *utils.MissingConfigError
		if errors.As(err, &missing) {
			fmt.Println("BurakAI is not configured yet. Set the following environment variables (or a .env file):")
			for _, v := range missing.Vars {
				fmt.Printf("  %s\n", v)
			}
			os.Exit(1)
		}
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	if *noSync {
		config.Sync.Enabled = false
	}

	database, err := db.New(config.Data.DBPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize database")
		os.Exit(1)
	}
	defer database.Close()
	logger.Info().Str("path", config.Data.DBPath).Msg("database initialized")

	conversations, settings, err := database.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load persisted state")
		os.Exit(1)
	}

	provider := identity.NewProvider(identity.Config{
		BaseURL: config.Identity.BaseURL,
		APIKey:  config.Identity.APIKey,
	}, logger)

	user, err := provider.Establish(context.Background(), "")
	if err != nil {
		logger.Error().Err(err).Msg("failed to establish identity")
		fmt.Printf("Could not sign in: %v\n", err)
		os.Exit(1)
	}

	completer := llm.NewClient(llm.Config{
		APIKey:  config.Completion.APIKey,
		BaseURL: config.Completion.BaseURL,
		Model:   config.Completion.Model,
	})

	options := []chat.Option{
		chat.WithUser(*user),
		chat.WithStore(database),
		chat.WithConversations(conversations),
		chat.WithLogger(logger),
	}
	if settings != nil {
		options = append(options, chat.WithSettings(*settings))
	}

	var channel *realtime.Channel
	if config.Sync.Enabled {
		channel = realtime.NewChannel(config.Sync.URL, logger)
		options = append(options, chat.WithPublisher(channel, config.Sync.AppID))
	}

	manager := chat.NewManager(completer, options...)

	if channel != nil {
		sub, err := channel.Subscribe(config.Sync.AppID, func(snapshot []realtime.Message) {
			manager.ApplyRemoteUpdate(config.Sync.AppID, snapshot)
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to subscribe to sync backend")
			os.Exit(1)
		}
		defer sub.Unsubscribe()
		defer channel.Close()
		logger.Info().Str("scope", config.Sync.AppID).Msg("sync enabled")
	}

	logger.Info().Msg("application started")
	runConsole(manager, database)
	logger.Info().Msg("application stopped")
}

// runConsole drives the interactive loop. Plain input is sent to the active
// conversation; lines starting with / are commands.
func runConsole(manager *chat.Manager, database *db.DB) {
	view := manager.Snapshot()
	fmt.Printf("BurakAI v%s - signed in as %s\n", version, view.User.Label)
	fmt.Println("Type a message, or /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(manager, database, line); quit {
				return
			}
			continue
		}

		sendAndPrint(manager, line)
	}
}

// sendAndPrint routes a message to the active conversation, creating one when
// none is active, and prints the reply.
func sendAndPrint(manager *chat.Manager, text string) {
	id := manager.Active()
	if id == "" {
		id = manager.CreateConversation(text)
	}

	if err := manager.SendMessage(context.Background(), id, text); err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			fmt.Println("Nothing to send.")
		case errors.Is(err, chat.ErrCompletionInFlight):
			fmt.Println("Still waiting for the previous reply.")
		default:
			fmt.Printf("Send failed: %v\n", err)
		}
		return
	}

	view := manager.Snapshot()
	conv := view.Conversation(id)
	if conv == nil || len(conv.Messages) == 0 {
		return
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.Role == chat.RoleAssistant {
		fmt.Println(formatMessage(view, last))
	}
}

// runCommand executes one slash command. It reports whether the loop should
// exit.
func runCommand(manager *chat.Manager, database *db.DB, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		printHelp()
	case "/new":
		manager.CreateConversation(strings.Join(args, " "))
		fmt.Println("Started a new conversation.")
	case "/list":
		printConversations(manager.Snapshot())
	case "/open":
		openConversation(manager, args)
	case "/show":
		printHistory(manager.Snapshot())
	case "/delete":
		deleteConversation(manager, args)
	case "/clear":
		manager.ClearHistory()
		fmt.Println("History cleared.")
	case "/settings":
		updateSettings(manager, args)
	case "/stats":
		printStats(database)
	case "/vacuum":
		if err := database.Vacuum(); err != nil {
			fmt.Printf("Vacuum failed: %v\n", err)
		} else {
			fmt.Println("Database optimized.")
		}
	case "/quit", "/exit":
		return true
	default:
		fmt.Printf("Unknown command %s, try /help\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Println(`Commands:
  /new [title]          start a new conversation
  /list                 list conversations
  /open <n>             switch to conversation n from /list
  /show                 print the active conversation
  /delete <n>           delete conversation n from /list
  /clear                delete all conversations
  /settings             show settings
  /settings <key> <val> update a setting (personality, creativity, language, showtime)
  /stats                database statistics
  /vacuum               optimize the database file
  /quit                 exit`)
}

func printConversations(view chat.View) {
	if len(view.Conversations) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	for i, conv := range view.Conversations {
		marker := " "
		if conv.ID == view.ActiveID {
			marker = "*"
		}
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s %2d. %s (%d messages)\n", marker, i+1, title, len(conv.Messages))
	}
}

func printHistory(view chat.View) {
	conv := view.ActiveConversation()
	if conv == nil {
		fmt.Println("No active conversation.")
		return
	}
	for _, msg := range conv.Messages {
		fmt.Println(formatMessage(view, msg))
	}
}

// formatMessage renders one message line, honoring the show-time setting.
func formatMessage(view chat.View, msg chat.Message) string {
	label := view.User.Label
	if msg.Role == chat.RoleAssistant {
		label = chat.AssistantLabel
	}

	var b strings.Builder
	if view.Settings.ShowTime && !msg.CreatedAt.IsZero() {
		b.WriteString(msg.CreatedAt.Format("[15:04] "))
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(msg.Content)
	switch msg.State {
	case chat.StatePending:
		b.WriteString(" (sending)")
	case chat.StateFailed:
		b.WriteString(" (failed)")
	}
	return b.String()
}

// conversationByIndex resolves a 1-based /list index.
func conversationByIndex(view chat.View, args []string) (string, bool) {
	if len(args) != 1 {
		fmt.Println("Expected a conversation number, see /list")
		return "", false
	}
	var n int
	if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 1 || n > len(view.Conversations) {
		fmt.Println("Expected a conversation number, see /list")
		return "", false
	}
	return view.Conversations[n-1].ID, true
}

func openConversation(manager *chat.Manager, args []string) {
	id, ok := conversationByIndex(manager.Snapshot(), args)
	if !ok {
		return
	}
	if err := manager.SetActive(id); err != nil {
		fmt.Printf("Failed to open conversation: %v\n", err)
		return
	}
	printHistory(manager.Snapshot())
}

func deleteConversation(manager *chat.Manager, args []string) {
	id, ok := conversationByIndex(manager.Snapshot(), args)
	if !ok {
		return
	}
	if err := manager.DeleteConversation(id); err != nil {
		fmt.Printf("Failed to delete conversation: %v\n", err)
		return
	}
	fmt.Println("Conversation deleted.")
}

func updateSettings(manager *chat.Manager, args []string) {
	if len(args) == 0 {
		s := manager.Settings()
		fmt.Printf("personality: %s\ncreativity:  %s\nlanguage:    %s\nshowtime:    %t\n",
			s.Personality, s.Creativity, s.Language, s.ShowTime)
		return
	}
	if len(args) != 2 {
		fmt.Println("Usage: /settings <key> <value>")
		return
	}

	key, value := args[0], args[1]
	var patch chat.SettingsPatch
	switch key {
	case "personality":
		patch.Personality = &value
	case "creativity":
		patch.Creativity = &value
	case "language":
		patch.Language = &value
	case "showtime":
		show := value == "on" || value == "true"
		patch.ShowTime = &show
	default:
		fmt.Printf("Unknown setting %q\n", key)
		return
	}
	manager.UpdateSettings(patch)
	fmt.Println("Settings updated.")
}

func printStats(database *db.DB) {
	stats, err := database.GetStats()
	if err != nil {
		fmt.Printf("Failed to read stats: %v\n", err)
		return
	}
	fmt.Printf("Conversations: %d\nMessages:      %d\nDatabase size: %.1f KB\n",
		stats.ConversationCount, stats.MessageCount, float64(stats.DBSizeBytes)/1024)
}
