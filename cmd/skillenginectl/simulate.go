package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relaymesh/skillengine/internal/domain"
	"github.com/relaymesh/skillengine/internal/evaluator"
	"github.com/relaymesh/skillengine/internal/events"
	"github.com/relaymesh/skillengine/internal/llmclient"
	"github.com/relaymesh/skillengine/internal/partition"
	"github.com/relaymesh/skillengine/internal/skillengine"
	"github.com/relaymesh/skillengine/internal/storage/logstore"
	"github.com/relaymesh/skillengine/internal/storage/sqlite"
)

var (
	simPartitions int
	simArms       int
	simMinPulls   int
	simRequests   int
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simPartitions, "partitions", 2, "number of partitions (K)")
	simulateCmd.Flags().IntVar(&simArms, "arms", 2, "arms per partition")
	simulateCmd.Flags().IntVar(&simMinPulls, "min-pulls", 2, "minimum pulls per arm before reflection (m)")
	simulateCmd.Flags().IntVar(&simRequests, "requests", 40, "number of synthetic requests to drive through the engine")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Provision a demo skill and drive synthetic traffic through the engine",
	Long: `Creates a fresh skill with K partitions and demo arms, then repeatedly calls
selectArmForRequest/recordOutcome with synthetic requests, the same loop a
real gateway process would run, so the bandit and reflection behavior can
be observed end to end. It writes no request records to the log store, so
the rubric bootstrap never triggers during a simulation.`,
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage db %s: %w", dbPath, err)
	}
	defer db.Close()

	logs, err := logstore.Open(logDBPath)
	if err != nil {
		return fmt.Errorf("open log db %s: %w", logDBPath, err)
	}
	defer logs.Close()

	ctx := cmd.Context()
	skillID, err := provisionSkill(ctx, db)
	if err != nil {
		return fmt.Errorf("provision demo skill: %w", err)
	}

	judge := llmclient.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	registry := evaluator.NewRegistry()
	hub := events.NewHub()
	eng := skillengine.New(db, logs, judge, registry, hub, nil)

	for i := 0; i < simRequests; i++ {
		messages := []domain.Message{
			{Role: "user", Content: fmt.Sprintf("synthetic request #%d", i)},
		}
		arm, handle, err := eng.SelectArmForRequest(ctx, skillID, skillengine.SelectInput{
			FunctionName: domain.FunctionChatComplete,
			Messages:     messages,
		})
		if err != nil {
			return fmt.Errorf("select arm for request %d: %w", i, err)
		}

		response := fmt.Sprintf("synthetic response using arm %s", arm.ID)
		if err := eng.RecordOutcome(ctx, handle, skillengine.RecordInput{
			Messages: messages,
			Response: response,
		}); err != nil {
			return fmt.Errorf("record outcome for request %d: %w", i, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "request %d -> partition=%s arm=%s\n", i, handle.PartitionID, handle.ArmID)
	}

	return nil
}

// provisionSkill creates a demo skill with K partitions and a fixed arm
// count per partition, plus one attached evaluation, so simulate has
// something to select/update against on a fresh database.
func provisionSkill(ctx context.Context, db *sqlite.DB) (string, error) {
	skillID := "demo-" + uuid.NewString()
	skill := domain.Skill{
		ID:                   skillID,
		AgentID:              "demo-agent",
		AgentDescription:     "A demo agent answering short synthetic requests.",
		Description:          "Answers synthetic requests for the skillenginectl demo.",
		PartitionCount:       simPartitions,
		MinPullsPerArm:       simMinPulls,
		SystemPromptVariants: simArms,
		ExplorationConstant:  1.0,
	}
	if err := db.CreateSkill(ctx, skill); err != nil {
		return "", err
	}

	centroids := partition.SeedCentroids(skillID, simPartitions, 2)
	partitions := make([]domain.Partition, simPartitions)
	for i := 0; i < simPartitions; i++ {
		var centroid []float64
		if i < len(centroids) {
			centroid = centroids[i]
		}
		partitions[i] = domain.Partition{
			ID:       uuid.NewString(),
			SkillID:  skillID,
			Index:    i + 1,
			Centroid: centroid,
		}
	}
	if err := db.CreatePartitions(ctx, partitions); err != nil {
		return "", err
	}

	for _, p := range partitions {
		arms := make([]domain.Arm, simArms)
		for j := 0; j < simArms; j++ {
			arms[j] = domain.Arm{
				ID:          uuid.NewString(),
				PartitionID: p.ID,
				Params: domain.ArmParams{
					ModelID:      "demo-model",
					SystemPrompt: fmt.Sprintf("You are a helpful assistant. (variant %d)", j+1),
				},
			}
		}
		if err := db.CreateArms(ctx, arms); err != nil {
			return "", err
		}
	}

	evaluations := []domain.Evaluation{
		{
			ID:      uuid.NewString(),
			SkillID: skillID,
			Method:  domain.MethodTaskCompletion,
			Weight:  1.0,
			Params:  map[string]any{"criteria": "the response directly answers the request"},
		},
	}
	if err := db.CreateEvaluations(ctx, evaluations); err != nil {
		return "", err
	}

	return skillID, nil
}
