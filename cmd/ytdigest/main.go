package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/ytdigest/internal/config"
	"github.com/TobiSchelling/ytdigest/internal/enrich"
	"github.com/TobiSchelling/ytdigest/internal/insight"
	"github.com/TobiSchelling/ytdigest/internal/llm"
	"github.com/TobiSchelling/ytdigest/internal/logging"
	"github.com/TobiSchelling/ytdigest/internal/mail"
	"github.com/TobiSchelling/ytdigest/internal/metrics"
	"github.com/TobiSchelling/ytdigest/internal/pipeline"
	"github.com/TobiSchelling/ytdigest/internal/render"
	"github.com/TobiSchelling/ytdigest/internal/server"
	"github.com/TobiSchelling/ytdigest/internal/source"
	"github.com/TobiSchelling/ytdigest/internal/state"
)

var version = "dev"

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by go install.
func resolveVersion(ldflags string, info *debug.BuildInfo) string {
	if ldflags != "dev" {
		return ldflags
	}
	if info == nil || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func init() {
	info, _ := debug.ReadBuildInfo()
	version = resolveVersion(version, info)
	rootCmd.Version = version
}

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ytdigest",
	Short:   "YouTube channel digests by email",
	Long:    "ytdigest watches sets of YouTube channels and mails a summarized, ranked digest of new uploads on a daily, twice-weekly or weekly cadence.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = logging.New("info", true)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger = logging.New(level, verbose || isTerminal(os.Stderr))

		secrets, err := config.LoadSecrets(filepath.Join(filepath.Dir(path), ".env"))
		if err != nil {
			return err
		}
		overrides, err := secrets.RecipientOverrides()
		if err != nil {
			return err
		}
		cfg.Secrets = secrets
		cfg.ApplyRecipientOverrides(overrides)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ytdigest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/ytdigest/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure digests and channels. Put API keys and SMTP credentials in a .env file next to it.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show digest schedule and delivery history",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		now := nowUTC()
		fmt.Println("Digests:")
		for _, d := range cfg.Digests {
			st, err := db.LoadState(d.ID)
			if err != nil {
				return fmt.Errorf("loading state for %s: %w", d.ID, err)
			}
			last := "never"
			if st.LastRun != nil {
				last = st.LastRun.Format("2006-01-02 15:04 UTC")
			}
			due := ""
			if pipeline.Due(d.Frequency, st.LastRun, now, false) {
				due = " (due)"
			}
			fmt.Printf("  %s [%s]%s\n", d.Name, d.Frequency, due)
			fmt.Printf("    id: %s  channels: %d  recipients: %d\n", d.ID, len(d.Channels), len(d.Recipients))
			fmt.Printf("    last run: %s  seen videos: %d\n", last, len(st.SeenIDs))
		}

		fmt.Println("\nHistory:")
		fmt.Printf("  Runs: %d\n", stats.Runs)
		fmt.Printf("  Delivered: %d\n", stats.DeliveredRuns)
		if stats.LastDeliveryAt != nil {
			fmt.Printf("  Last delivery: %s\n", stats.LastDeliveryAt.Format("2006-01-02 15:04 UTC"))
		}

		fmt.Println("\nCredentials:")
		fmt.Printf("  YouTube Data API: %s\n", configured(cfg.Secrets.YouTubeAPIKey != ""))
		fmt.Printf("  SMTP: %s\n", configured(newSender().IsConfigured()))
		return nil
	},
}

// --- run command ---

var (
	dryRun    bool
	runDigest string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send every digest that is due (or one digest with --digest)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runner := newRunner(db)
		runner.DryRun = dryRun

		var results []pipeline.DigestResult
		if runDigest != "" {
			res, err := runner.RunOne(ctx, runDigest)
			if err != nil {
				return err
			}
			results = append(results, res)
		} else {
			results = runner.RunAll(ctx)
		}

		failed := 0
		for _, res := range results {
			printResult(res)
			if res.Outcome == state.OutcomeError || res.Outcome == state.OutcomeDeliveryFailed {
				failed++
			}
		}

		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			logger.Warn().Err(err).Str("path", cfg.Metrics.TextfilePath).Msg("writing metrics textfile failed")
		}

		if failed > 0 {
			return fmt.Errorf("%d digest(s) failed", failed)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build digests without sending mail or updating state")
	runCmd.Flags().StringVarP(&runDigest, "digest", "d", "", "Run only this digest (id or name), ignoring its schedule")
}

func printResult(res pipeline.DigestResult) {
	fmt.Printf("\n%s: %s\n", res.Name, res.Outcome)
	for i, step := range res.Steps {
		fmt.Printf("  %d. %s: ", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("error: %v\n", step.Err)
		} else {
			fmt.Println(step.Summary)
		}
	}
	if res.Err != nil {
		fmt.Printf("  Error: %v\n", res.Err)
	}
	if res.Document != nil {
		fmt.Printf("  Subject: %s\n", res.Document.Subject)
	}
}

// --- preview command ---

var (
	previewDigest    string
	previewOut       string
	previewRecipient string
	previewEML       string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render a digest to an HTML file without sending it",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		doc, res, err := newRunner(db).Preview(ctx, previewDigest, previewRecipient)
		if err != nil {
			return err
		}
		if res.Outcome == state.OutcomeNoItems {
			fmt.Printf("%s: no new videos in the window\n", res.Name)
			return nil
		}

		if err := os.WriteFile(previewOut, []byte(doc.HTML), 0o644); err != nil {
			return fmt.Errorf("writing preview: %w", err)
		}
		fmt.Printf("Subject: %s\n", doc.Subject)
		fmt.Printf("Wrote %s\n", previewOut)

		if previewEML != "" {
			if err := writeEML(previewEML, doc); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", previewEML)
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().StringVarP(&previewDigest, "digest", "d", "", "Digest id or name")
	previewCmd.Flags().StringVarP(&previewOut, "out", "o", "digest.html", "Output file")
	previewCmd.Flags().StringVar(&previewEML, "eml", "", "Also write the full MIME message to this file")
	previewCmd.Flags().StringVar(&previewRecipient, "recipient", "", "Recipient for the unsubscribe link (default: first configured)")
	_ = previewCmd.MarkFlagRequired("digest")
}

// writeEML writes doc as the MIME message a recipient would receive.
func writeEML(path string, doc render.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	to := previewRecipient
	if to == "" {
		if d, ok := cfg.FindDigest(previewDigest); ok && len(d.Recipients) > 0 {
			to = d.Recipients[0]
		}
	}
	sender := newSender()
	return sender.WriteMessage(f, mail.Message{
		To:              to,
		Subject:         doc.Subject,
		HTML:            doc.HTML,
		Text:            doc.Text,
		ListUnsubscribe: doc.UnsubscribeURL,
	})
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		srv, err := server.New(db, cfg, logger)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- wiring ---

func openDB() (*state.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return state.Open(filepath.Join(dataDir, "ytdigest.db"))
}

func newSender() *mail.SMTPSender {
	return mail.NewSMTPSender(mail.Options{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		SSL:      cfg.Mail.SSL,
		From:     cfg.Mail.From,
		Username: cfg.Secrets.SMTPUsername,
		Password: cfg.Secrets.SMTPPassword,
		Timeout:  cfg.Pipeline.Timeouts.Deliver,
	})
}

func newRunner(db *state.DB) *pipeline.Runner {
	yt := cfg.Sources.YouTube
	client := source.NewClient(cfg.Secrets.YouTubeAPIKey,
		source.WithAPIBaseURL(yt.APIBaseURL),
		source.WithWebBaseURL(yt.WebBaseURL),
	)
	if !client.HasAPIKey() {
		logger.Warn().Msg("YOUTUBE_API_KEY not set; using feed data and watch page descriptions only")
	}

	enricher := enrich.New(client, enrich.Options{
		MaxComments:     yt.MaxComments,
		Captions:        yt.FetchCaptions,
		CaptionLanguage: yt.CaptionLanguage,
		Concurrency:     cfg.Pipeline.Concurrency,
		Timeout:         cfg.Pipeline.Timeouts.Source,
	}, logger.With().Str("component", "enrich").Logger())

	sum := cfg.Summarization
	provider := llm.CreateProvider(llm.Options{
		Provider:        sum.Provider,
		AnthropicModel:  sum.AnthropicModel,
		AnthropicAPIKey: cfg.Secrets.AnthropicAPIKey,
		OpenAIModel:     sum.OpenAIModel,
		OpenAIAPIKey:    cfg.Secrets.OpenAIAPIKey,
		OllamaModel:     sum.Model,
		OllamaURL:       sum.OllamaURL,
	}, logger)

	analyzer := insight.NewGenerator(provider, insight.Options{
		Concurrency:    cfg.Pipeline.Concurrency,
		Timeout:        cfg.Pipeline.Timeouts.Generate,
		ThemeMaxTokens: sum.ThemeMaxTokens,
		ItemMaxTokens:  sum.ItemMaxTokens,
	}, logger.With().Str("component", "insight").Logger())

	sender := newSender()
	if !sender.IsConfigured() && !dryRun {
		logger.Warn().Msg("SMTP credentials missing; deliveries will fail")
	}

	return pipeline.New(cfg, pipeline.Deps{
		Store:    db,
		Source:   client,
		Enricher: enricher,
		Analyzer: analyzer,
		Sender:   sender,
	}, logger)
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "missing"
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
