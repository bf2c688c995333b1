package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"unab.cl/superapp/internal/api"
	"unab.cl/superapp/internal/config"
	"unab.cl/superapp/internal/core"
	"unab.cl/superapp/internal/logging"
	"unab.cl/superapp/internal/session"
	"unab.cl/superapp/internal/store"
)

var (
	examTopic      string
	examDifficulty string
	examQuestions  int
)

var rootCmd = &cobra.Command{
	Use:   "superapp",
	Short: "UNAB super-app assistant backend",
	Long: `superapp serves the chat API behind the university super-app: four AI personas
with independent transcripts per user, plus exam generation for teachers.`,
	SilenceUsage: true,
	RunE:         runServe, // Default behavior is to serve the API
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var examCmd = &cobra.Command{
	Use:   "exam",
	Short: "Generate an exam and print it as Markdown",
	Long:  `Generate an exam with the configured provider's fast model and write the Markdown to stdout.`,
	RunE:  runExam,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	examCmd.Flags().StringVarP(&examTopic, "topic", "t", "", "Exam topic (required)")
	examCmd.Flags().StringVarP(&examDifficulty, "difficulty", "d", string(core.DifficultyUniversity), "Basic, Intermediate, University or PhD")
	examCmd.Flags().IntVarP(&examQuestions, "questions", "n", 10, "Total number of questions")
	_ = examCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(serveCmd, examCmd)
}

func setup() (*zap.Logger, error) {
	if err := config.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := logging.New(config.AppConfig.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	cfg := config.AppConfig

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	// Initialize LLM provider
	provider, models, closeProvider, err := newProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	chatService := core.NewChatService(provider, core.NewComposer(models), cfg.ProviderTimeout, logger)
	examService := core.NewExamService(provider, models.Fast, cfg.ProviderTimeout, logger)

	sessions := session.NewManager(logger)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sessions.RunSweeper(sweepCtx, cfg.SessionIdleTTL/4, cfg.SessionIdleTTL)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, examService, sessions, dbStore, logger)
	router := api.NewRouter(apiHandler, cfg.CORSOrigins)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second, // a send blocks until the provider settles
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", serverAddr), zap.String("provider", provider.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-quit:
	}
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting gracefully")
	return nil
}

func runExam(cmd *cobra.Command, _ []string) error {
	logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	cfg := config.AppConfig

	provider, models, closeProvider, err := newProvider(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	examService := core.NewExamService(provider, models.Fast, cfg.ProviderTimeout, logger)
	exam, err := examService.GenerateExam(cmd.Context(), core.ExamRequest{
		Topic:      examTopic,
		Difficulty: core.Difficulty(examDifficulty),
		Questions:  examQuestions,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), exam)
	return nil
}
