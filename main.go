package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parley/db"
	"parley/etc"
	"parley/relay"
	"parley/summary"
	"parley/upstream"
	"parley/web"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to run the server on")
	serveCmd.Flags().
		Bool("end-on-closing-remarks", false, "End the interview when the model says goodbye")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listInterviewsCmd)
	rootCmd.AddCommand(showInterviewCmd)
	rootCmd.AddCommand(summarizeCmd)

	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().String("model", "", "Live dialog model")
	rootCmd.PersistentFlags().
		String("postgres-url", "", "PostgreSQL connection URL (empty runs in-memory)")

	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag(
		"postgres_url",
		rootCmd.PersistentFlags().Lookup("postgres-url"),
	)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley relays live voice interviews to a speech model",
	Long:  `Parley runs websocket voice interviews against a realtime speech model, records the transcript, and summarizes each conversation when it ends.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interview server",
	Run:   runServe,
}

var listInterviewsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded interviews",
	Long:  `List all recorded interviews with their details in a formatted table`,
	Run:   runListInterviews,
}

var showInterviewCmd = &cobra.Command{
	Use:   "show",
	Short: "Browse an interview transcript",
	Run:   runShowInterview,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <interviewID>",
	Short: "Regenerate the summary for an interview",
	Args:  cobra.ExactArgs(1),
	Run:   runSummarize,
}

func createLoggers() (mainLogger, talkLogger, dataLogger *log.Logger) {
	logLevel := log.DebugLevel

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	talkLogger = logger.With().WithPrefix("talk")
	dataLogger = logger.With().WithPrefix("data")

	return
}

func openStore(ctx context.Context, mainLogger, dataLogger *log.Logger) db.Store {
	url := viper.GetString("postgres_url")
	if url == "" {
		mainLogger.Warn("no postgres_url configured, interviews will not survive restarts")
		return db.NewMemoryStore()
	}
	store, err := db.OpenPostgres(ctx, url, dataLogger)
	if err != nil {
		mainLogger.Fatal("open database", "error", err.Error())
	}
	return store
}

func runServe(cmd *cobra.Command, args []string) {
	mainLogger, talkLogger, dataLogger := createLoggers()

	ctx := context.Background()
	store := openStore(ctx, mainLogger, dataLogger)

	apiKey := viper.GetString("gemini_api_key")
	if apiKey == "" {
		mainLogger.Warn("no gemini_api_key configured, interviews will fail to start")
	}

	endOnClosing, _ := cmd.Flags().GetBool("end-on-closing-remarks")
	port, _ := cmd.Flags().GetInt("port")

	server := &web.Server{
		Store: store,
		Dialer: &upstream.GeminiDialer{
			APIKey: apiKey,
			Model:  viper.GetString("model"),
			Logger: talkLogger,
		},
		Summarizer: &summary.GeminiSummarizer{
			APIKey: apiKey,
			Logger: talkLogger,
		},
		Config: relay.Config{
			Greeting:            relay.DefaultGreeting,
			EndOnClosingRemarks: endOnClosing,
		},
		Logger: talkLogger,
	}

	if err := server.Serve(port); err != nil {
		mainLogger.Fatal("server stopped", "error", err.Error())
	}
}

func runListInterviews(cmd *cobra.Command, args []string) {
	mainLogger, _, dataLogger := createLoggers()

	ctx := context.Background()
	store := openStore(ctx, mainLogger, dataLogger)

	interviews, err := store.ListInterviews(ctx)
	if err != nil {
		mainLogger.Fatal("fetch interviews", "error", err.Error())
	}

	if len(interviews) == 0 {
		fmt.Println("No interviews found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Started At", "Status", "Duration", "Summary"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, interview := range interviews {
		summaryCell := interview.Summary
		if len(summaryCell) > 60 {
			summaryCell = summaryCell[:57] + "..."
		}
		table.Append([]string{
			interview.ID,
			interview.StartedAt.Format("2006-01-02 15:04:05"),
			string(interview.Status),
			etc.FormatDuration(interview.DurationSeconds),
			summaryCell,
		})
	}

	table.Render()
}

func runShowInterview(cmd *cobra.Command, args []string) {
	mainLogger, _, dataLogger := createLoggers()

	ctx := context.Background()
	store := openStore(ctx, mainLogger, dataLogger)

	interviews, err := store.ListInterviews(ctx)
	if err != nil {
		mainLogger.Fatal("fetch interviews", "error", err.Error())
	}
	if len(interviews) == 0 {
		mainLogger.Fatal("no interviews found")
	}

	options := make([]huh.Option[string], len(interviews))
	for i, interview := range interviews {
		options[i] = huh.NewOption(
			fmt.Sprintf(
				"%s (%s) - %s",
				interview.ID,
				interview.StartedAt.Format("2006-01-02 15:04"),
				interview.Status,
			),
			interview.ID,
		)
	}

	var selectedID string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose an interview").
				Options(options...).
				Value(&selectedID),
		),
	)

	if err := form.Run(); err != nil {
		mainLogger.Fatal("form input", "error", err.Error())
	}

	interview, err := store.GetInterview(ctx, selectedID)
	if err != nil {
		mainLogger.Fatal("fetch interview", "error", err.Error())
	}
	utterances, err := store.ListUtterances(ctx, selectedID)
	if err != nil {
		mainLogger.Fatal("fetch transcript", "error", err.Error())
	}

	for _, u := range utterances {
		fmt.Printf("%s: %s\n", u.Speaker, u.Text)
	}
	if interview.Summary != "" {
		fmt.Printf("\n--- Summary ---\n%s\n", interview.Summary)
	}
}

func runSummarize(cmd *cobra.Command, args []string) {
	mainLogger, talkLogger, dataLogger := createLoggers()

	ctx := context.Background()
	store := openStore(ctx, mainLogger, dataLogger)

	utterances, err := store.ListUtterances(ctx, args[0])
	if err != nil {
		mainLogger.Fatal("fetch transcript", "error", err.Error())
	}

	summarizer := &summary.GeminiSummarizer{
		APIKey: viper.GetString("gemini_api_key"),
		Logger: talkLogger,
	}
	text, err := summarizer.Summarize(ctx, utterances)
	if err != nil {
		mainLogger.Fatal("generate summary", "error", err.Error())
	}

	fmt.Println(text)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
