package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/search"
)

const queryTabID = "cli"

func newQueryCommand(configPath *string) *cobra.Command {
	var (
		categoryRaw string
		engineKey   string
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one search and print the render payload as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			category, err := domain.ParseCategory(categoryRaw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stack, err := buildBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()
			if engineKey != "" {
				if err := stack.registry.SetEngine(engineKey); err != nil {
					return err
				}
			}

			service := search.NewService(stack.searcher, stack.presenter,
				search.WithEngines(stack.registry),
				search.WithSearchDefaults(cfg.Language, cfg.SafeSearch()),
				search.WithLogger(logger),
			)
			if err := service.TabCreated(queryTabID); err != nil {
				return err
			}
			if err := service.TabActivated(queryTabID); err != nil {
				return err
			}
			if err := service.PerformSearch(ctx, queryTabID, strings.Join(args, " ")); err != nil {
				return err
			}
			if category != domain.CategoryGeneral {
				if err := service.SwitchCategory(ctx, queryTabID, category); err != nil {
					return err
				}
			}
			service.Wait()

			snapshot, err := service.Snapshot(queryTabID)
			if err != nil {
				return err
			}
			if snapshot.LastError != nil {
				return fmt.Errorf("search failed: %s", snapshot.LastError.Message)
			}
			if snapshot.Payload == nil {
				return fmt.Errorf("no results rendered for %s", category)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(snapshot.Payload)
		},
	}
	cmd.Flags().StringVar(&categoryRaw, "category", string(domain.CategoryGeneral), "result category to print")
	cmd.Flags().StringVar(&engineKey, "engine", "", "engine key overriding the configured one")
	return cmd
}
