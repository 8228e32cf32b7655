package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bastago/basta/internal/app"
	"github.com/bastago/basta/internal/logger"
	"github.com/bastago/basta/internal/services"
	"github.com/bastago/basta/pkg/wordjudge"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "basta",
	Short:   "Basta - real-time word game server",
	Long:    "Basta is the session server for the classic stop-the-clock word game:\nrooms, rounds, letter draws, answer validation and scoring over websockets.",
	Version: version,
	RunE:    run,
}

func init() {
	bindFlags(rootCmd.Flags())
}

func bindFlags(flags *pflag.FlagSet) {
	flags.Int("port", 8080, "HTTP server port")
	flags.String("db", "basta.db", "SQLite database path")
	flags.String("jwt-secret", "", "Token signing secret (required in production)")
	flags.String("base-url", "", "External base URL for invite links (autodetected if empty)")
	flags.String("oracle-url", "", "Answer-judge service URL (heuristic validation if empty)")
	flags.String("loglevel", "info", "Log level (debug, info, warn, error)")
	flags.Bool("nokeyboard", false, "Disable keyboard shortcuts")
	flags.Duration("round-duration", 60*time.Second, "Writing time per round")
	flags.Duration("grace-window", 3*time.Second, "Late-submission window after a stop")
	flags.Int("rounds", 5, "Default rounds per game")

	viper.SetEnvPrefix("BASTA")
	viper.AutomaticEnv()
	viper.BindPFlags(flags)
}

func run(cmd *cobra.Command, args []string) error {
	// .env is a development convenience; absence is not an error
	godotenv.Load()

	appLog := logger.NewWithLevel(logger.ParseLevel(viper.GetString("loglevel")))

	secret := viper.GetString("jwt-secret")
	if secret == "" {
		secret = randomSecret()
		appLog.Warn("No jwt-secret configured, using a random one; tokens will not survive restarts")
	}

	var judge wordjudge.Client
	if oracleURL := viper.GetString("oracle-url"); oracleURL != "" {
		judge = wordjudge.NewHTTPClient(oracleURL, 10*time.Second, appLog)
	} else {
		appLog.Warn("No oracle-url configured, answers are validated heuristically")
		judge = wordjudge.NewMockClient(wordjudge.WithDefaultValid())
	}

	cfg := services.DefaultConfig()
	cfg.RoundDuration = viper.GetDuration("round-duration")
	cfg.GraceWindow = viper.GetDuration("grace-window")
	cfg.DefaultRounds = viper.GetInt("rounds")

	a, err := app.New(appLog, app.Options{
		DBPath:    viper.GetString("db"),
		JWTSecret: secret,
		BaseURL:   viper.GetString("base-url"),
		Judge:     judge,
		Game:      cfg,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Run(addr)
	}()

	if !viper.GetBool("nokeyboard") {
		printKeyboardHelp()
		go listenForKeyboard(appLog)
	}

	return <-serverErr
}

// cycleLogLevel cycles through debug -> info -> warn -> error
func cycleLogLevel(appLog *logger.SlogLogger) {
	var next string
	switch appLog.GetLevel().String() {
	case "DEBUG":
		next = "info"
	case "INFO":
		next = "warn"
	case "WARN":
		next = "error"
	default:
		next = "debug"
	}
	appLog.SetLevel(logger.ParseLevel(next))
	fmt.Printf("%sLog level: %s%s%s\n", green, yellow, next, reset)
}

// printKeyboardHelp displays all available keyboard shortcuts
func printKeyboardHelp() {
	fmt.Printf("\n%s%s  Keyboard Shortcuts:%s\n", bold, green, reset)
	fmt.Printf("    %sh%s      - Toggle HTTP request logging\n", cyan, reset)
	fmt.Printf("    %sl%s      - Cycle log level (debug → info → warn → error)\n", cyan, reset)
	fmt.Printf("    %sq%s      - Quit server\n", cyan, reset)
	fmt.Printf("    %s?%s      - Show this help\n\n", cyan, reset)
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal("failed to generate token secret:", err)
	}
	return hex.EncodeToString(b)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
