package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vampirenirmal/novelforge/internal/session"
)

var (
	targetWords  int
	stylePref    string
	providerName string
	outputPath   string
)

var generateCmd = &cobra.Command{
	Use:   "generate [premise]",
	Short: "Generate a novel from a premise and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}

		s, err := a.manager.Start(session.Request{
			Premise:     args[0],
			TargetWords: targetWords,
			Style:       stylePref,
			Provider:    providerName,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "session %s started\n", s.ID)

		for {
			snap := s.Snapshot()
			switch snap.Status {
			case session.StatusCompleted:
				return writeResult(s, a.client.Metrics().TotalCost())
			case session.StatusFailed:
				return fmt.Errorf("generation failed: %s", snap.Error)
			case session.StatusCancelled:
				return fmt.Errorf("generation cancelled")
			}
			fmt.Fprintf(os.Stderr, "  %3d%%  %s\n", snap.Progress, snap.Stage)
			time.Sleep(2 * time.Second)
		}
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(configPath)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		available := make(map[string]bool)
		for _, name := range a.registry.Available(ctx) {
			available[name] = true
		}

		for _, name := range a.registry.Names() {
			cap, _ := a.registry.Capability(name)
			status := "unavailable"
			if available[name] {
				status = "available"
			}
			fmt.Printf("%-10s priority=%d quality=%.1f cost/1k=%.3f  %s\n",
				name, cap.Priority, cap.Quality, cap.CostWeight, status)
		}
		return nil
	},
}

func writeResult(s *session.Session, totalCost float64) error {
	result, ok := s.Result()
	if !ok {
		return fmt.Errorf("session completed without a result")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if outputPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d words, grade %s, $%.4f spent)\n",
		outputPath, result.TotalWords, result.Quality.Grade, totalCost)
	return nil
}

func init() {
	generateCmd.Flags().IntVarP(&targetWords, "words", "w", 20000, "target word count")
	generateCmd.Flags().StringVarP(&stylePref, "style", "s", "", "prose style preference")
	generateCmd.Flags().StringVarP(&providerName, "provider", "p", "", "preferred provider")
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write result JSON to file")
}
