// Command-line interface for running a full diagnosis chain locally
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"radiance/radiance/config"
	"radiance/radiance/pipeline"
	"radiance/radiance/services/llm"
	"radiance/radiance/utils/logging"

	"go.uber.org/zap"
)

func main() {
	logging.InitLogger()
	cfg := config.LoadConfig()

	args := os.Args[1:]
	if len(args) < 2 || args[0] != "diagnose" {
		fmt.Println("Radiance CLI usage:")
		fmt.Println("  radiance diagnose <patient-input.json>   # Run the full diagnosis chain")
		os.Exit(1)
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "cannot read patient input:", err)
		os.Exit(1)
	}
	var input pipeline.UserInput
	if err := json.Unmarshal(data, &input); err != nil {
		fmt.Fprintln(os.Stderr, "invalid patient input json:", err)
		os.Exit(1)
	}

	models, err := config.LoadStageModels(cfg.ModelsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stage model config error:", err)
		os.Exit(1)
	}

	client := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey)
	orchestrator := pipeline.NewOrchestrator(client, nil, models,
		time.Duration(cfg.StageTimeoutSeconds)*time.Second)

	ctx := context.Background()
	userID := 1
	s := orchestrator.InitializeSession(ctx, userID, input)
	fmt.Println("Session:", s.ID)
	fmt.Println()

	for s.Status == pipeline.StatusInProgress {
		role := pipeline.Chain[s.CurrentStep]
		fmt.Printf("── %s ──\n", role)

		sink := make(chan llm.StreamChunk, 16)
		errCh := make(chan error, 1)
		go func() {
			errCh <- orchestrator.RunNextStage(ctx, s, sink)
			close(sink)
		}()
		for chunk := range sink {
			fmt.Print(chunk.Delta)
		}
		fmt.Println()

		if err := <-errCh; err != nil {
			logging.ErrorLogger.Error("stage failed", zap.String("role", string(role)), zap.Error(err))
			fmt.Fprintln(os.Stderr, "stage failed:", err)
			os.Exit(1)
		}
	}

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "cannot render session:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
