package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scribe/llm"
	"scribe/metrics"
	"scribe/relay"
	"scribe/session"
	"scribe/stt"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentFlags().
		String("recognizer-url", "", "Recognizer WebSocket URL")
	rootCmd.PersistentFlags().
		String("recognizer-api-key", "", "Recognizer API key")
	rootCmd.PersistentFlags().
		String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().Int("port", 8000, "HTTP server port")
	rootCmd.PersistentFlags().
		String("language", "en-US", "Recognition language code")
	rootCmd.PersistentFlags().
		Int("sample-rate", 48000, "Audio sample rate in Hz")
	rootCmd.PersistentFlags().
		Int("summary-interval", 30, "Seconds of transcript per summary")

	viper.BindPFlag(
		"recognizer_url",
		rootCmd.PersistentFlags().Lookup("recognizer-url"),
	)
	viper.BindPFlag(
		"recognizer_api_key",
		rootCmd.PersistentFlags().Lookup("recognizer-api-key"),
	)
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("language", rootCmd.PersistentFlags().Lookup("language"))
	viper.BindPFlag(
		"sample_rate",
		rootCmd.PersistentFlags().Lookup("sample-rate"),
	)
	viper.BindPFlag(
		"summary_interval",
		rootCmd.PersistentFlags().Lookup("summary-interval"),
	)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetDefault("encoding", "LINEAR16")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stdout)
}

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe relays live audio to a speech recognizer and summarizes the conversation",
	Long:  `Scribe accepts browser WebSocket connections carrying raw PCM audio, relays the audio to a streaming speech recognizer, forwards transcripts back, and periodically summarizes the conversation.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	port := viper.GetInt("port")
	recognizerURL := viper.GetString("recognizer_url")
	recognizerKey := viper.GetString("recognizer_api_key")
	geminiKey := viper.GetString("gemini_api_key")
	intervalSeconds := viper.GetInt("summary_interval")

	configured := recognizerURL != "" && recognizerKey != "" && geminiKey != ""
	if !configured {
		logger.Warn(
			"missing recognizer or Gemini credentials, connections will be refused",
		)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	recognizer := stt.NewRealtimeClient(recognizerURL, recognizerKey, logger)

	var summarizer llm.Summarizer
	if configured {
		gemini, err := llm.NewGeminiSummarizer(
			context.Background(),
			geminiKey,
			intervalSeconds,
		)
		if err != nil {
			logger.Fatal("failed to create summarizer", "error", err)
		}
		defer gemini.Close()
		summarizer = gemini
	}

	cfg := relay.Config{
		Recognition: stt.Config{
			Encoding:                   viper.GetString("encoding"),
			SampleRateHz:               viper.GetInt("sample_rate"),
			LanguageCode:               viper.GetString("language"),
			EnableAutomaticPunctuation: true,
			InterimResults:             true,
		},
		SummaryInterval: time.Duration(intervalSeconds) * time.Second,
		SummaryTimeout:  15 * time.Second,
	}

	store := session.NewStore()
	controller := relay.NewController(
		store,
		recognizer,
		summarizer,
		cfg,
		m,
		logger,
	)

	sessionCtx, stopSessions := context.WithCancel(context.Background())
	defer stopSessions()

	handler := relay.NewHandler(sessionCtx, controller, configured, logger)

	r := chi.NewRouter()
	handler.Routes(r)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	go func() {
		logger.Info("serve", "url", fmt.Sprintf("http://localhost:%d", port))
		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("shutting down")
	stopSessions()

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Sessions observe cancellation within one teardown cycle; give
	// them that cycle before exiting.
	deadline := time.After(5 * time.Second)
	for store.Len() > 0 {
		select {
		case <-deadline:
			logger.Warn("exiting with sessions still open", "count", store.Len())
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
