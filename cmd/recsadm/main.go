// Command recsadm is the operational CLI for the recommendation engine:
// it analyzes quiz history, generates recommendations and study plans, and
// manages the engine's cache and migrations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"studyrec/internal/config"
	"studyrec/internal/database"
	"studyrec/internal/di"
	"studyrec/internal/models"
	"studyrec/internal/observability"
	"studyrec/internal/services"
	contextutils "studyrec/internal/utils"
	"studyrec/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliState carries the wired container between PersistentPreRunE and subcommands
type cliState struct {
	cfg       *config.Config
	logger    *observability.Logger
	container *di.ServiceContainer
	tp        trace.TracerProvider
	mp        *metric.MeterProvider
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	var catalogPath string

	root := &cobra.Command{
		Use:           "recsadm",
		Short:         "Administer the performance-driven recommendation engine",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			state.cfg = cfg
			tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "studyrec-admin")
			if err != nil {
				return err
			}
			state.tp = tp
			state.mp = mp
			state.logger = logger

			var catalog *services.StaticCatalog
			if catalogPath != "" {
				catalog, err = services.LoadStaticCatalog(catalogPath)
				if err != nil {
					return err
				}
			}

			state.container = di.NewServiceContainer(cfg, catalog, state.logger)
			return state.container.Initialize(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if sd, ok := state.tp.(interface {
				Shutdown(context.Context) error
			}); ok {
				if err := sd.Shutdown(shutdownCtx); err != nil {
					state.logger.Warn(shutdownCtx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
				}
			}
			if state.mp != nil {
				if err := state.mp.Shutdown(shutdownCtx); err != nil {
					state.logger.Warn(shutdownCtx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error()})
				}
			}
			if state.container == nil {
				return nil
			}
			return state.container.Shutdown(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "path to a YAML course catalog snapshot")

	root.AddCommand(
		newMigrateCmd(state),
		newAnalyzeCmd(state),
		newRecommendCmd(state),
		newPlanCmd(state),
		newCacheCmd(state),
	)
	return root
}

func newMigrateCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if state.cfg.Database.URL == "" {
				return fmt.Errorf("no database URL configured")
			}
			dm := database.NewManager(state.logger)
			return dm.RunMigrations(state.cfg.Database.URL)
		},
	}
}

func newAnalyzeCmd(state *cliState) *cobra.Command {
	var attemptsPath, courseID string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute a performance profile from quiz attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attempts, err := readAttempts(attemptsPath)
			if err != nil {
				return err
			}
			svc, err := state.container.GetPerformanceService()
			if err != nil {
				return err
			}
			profile := svc.AnalyzeCoursePerformance(cmd.Context(), attempts, courseID)
			return printJSON(cmd, profile)
		},
	}
	cmd.Flags().StringVar(&attemptsPath, "attempts", "", "path to a JSON file of quiz attempts")
	cmd.Flags().StringVar(&courseID, "course", "", "restrict analysis to one course")
	_ = cmd.MarkFlagRequired("attempts")
	return cmd
}

func newRecommendCmd(state *cliState) *cobra.Command {
	var attemptsPath, programID, courseID string
	var userID int

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Generate ranked learning recommendations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			attempts, err := readAttempts(attemptsPath)
			if err != nil {
				return err
			}
			engine, err := state.container.GetEngineService()
			if err != nil {
				return err
			}
			ctx := contextutils.WithUserID(cmd.Context(), userID)
			set, err := engine.GetRecommendations(ctx, &models.RecommendationRequest{
				UserID:    userID,
				ProgramID: programID,
				CourseID:  courseID,
				Attempts:  attempts,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, set)
		},
	}
	cmd.Flags().StringVar(&attemptsPath, "attempts", "", "path to a JSON file of quiz attempts")
	cmd.Flags().StringVar(&programID, "program", "", "program the course belongs to")
	cmd.Flags().StringVar(&courseID, "course", "", "course to recommend for")
	cmd.Flags().IntVar(&userID, "user", 0, "user id the request is for")
	_ = cmd.MarkFlagRequired("attempts")
	return cmd
}

func newPlanCmd(state *cliState) *cobra.Command {
	var contextPath string
	var userID int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a study plan from one quiz result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(contextPath)
			if err != nil {
				return err
			}
			var qc models.QuizContext
			if err := json.Unmarshal(raw, &qc); err != nil {
				return fmt.Errorf("failed to parse quiz context: %w", err)
			}
			engine, err := state.container.GetEngineService()
			if err != nil {
				return err
			}
			ctx := contextutils.WithUserID(cmd.Context(), userID)
			plan, err := engine.GetStudyPlan(ctx, &models.StudyPlanRequest{
				UserID:  userID,
				Context: qc,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, plan)
		},
	}
	cmd.Flags().StringVar(&contextPath, "quiz", "", "path to a JSON file holding the quiz context")
	cmd.Flags().IntVar(&userID, "user", 0, "user id the request is for")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

func newCacheCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the engine cache",
	}

	var sinceHours, statsUserID int
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show provider call and cache hit-rate statistics",
		RunE: func(c *cobra.Command, _ []string) error {
			engine, err := state.container.GetEngineService()
			if err != nil {
				return err
			}
			since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
			out, err := engine.CacheStats(c.Context(), since, statsUserID)
			if err != nil {
				return err
			}
			return printJSON(c, out)
		},
	}
	stats.Flags().IntVar(&sinceHours, "since-hours", 24, "aggregation window in hours")
	stats.Flags().IntVar(&statsUserID, "user", 0, "restrict statistics to one user (0 for all)")

	var userID int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired cache entries",
		RunE: func(c *cobra.Command, _ []string) error {
			engine, err := state.container.GetEngineService()
			if err != nil {
				return err
			}
			removed, err := engine.InvalidateUserCache(c.Context(), userID)
			if err != nil {
				return err
			}
			c.Printf("removed %d expired entries\n", removed)
			return nil
		},
	}
	cleanup.Flags().IntVar(&userID, "user", 0, "user whose entries to clean up (0 for all)")

	cmd.AddCommand(stats, cleanup)
	return cmd
}

func readAttempts(path string) ([]models.QuizAttempt, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var attempts []models.QuizAttempt
	if err := json.Unmarshal(raw, &attempts); err != nil {
		return nil, fmt.Errorf("failed to parse attempts: %w", err)
	}
	return attempts, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
