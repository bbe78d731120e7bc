package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	skeincmd "github.com/skein-dev/skein/pkg/cmd"
	"github.com/skein-dev/skein/pkg/definitions"
	"github.com/skein-dev/skein/pkg/engine"
	"github.com/skein-dev/skein/pkg/executor"
	"github.com/skein-dev/skein/pkg/log"
	"github.com/skein-dev/skein/pkg/models"
	"github.com/skein-dev/skein/pkg/persistence/memory"
)

// ErrRunNotCompleted is returned when a local run ends in any terminal state
// other than completed, so scripts can rely on the exit code.
var ErrRunNotCompleted = errors.New("workflow run did not complete")

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Run a workflow document locally and print the result",
		ArgsUsage: "<document.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "JSON object passed as the initial workflow context",
				Value:   "{}",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), "text")

			path := command.Args().First()
			if path == "" {
				return errors.New("usage: skein run <document.json>")
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			var input map[string]any
			if err := json.Unmarshal([]byte(command.String("input")), &input); err != nil {
				return fmt.Errorf("parsing --input: %w", err)
			}

			logger := log.WithModule("run")
			registry := skeincmd.NewRegistry(logger)
			persist := memory.NewPersistence()

			store := definitions.NewStore(logger, persist.Definitions(), registry)

			def, err := store.IngestDocument(ctx, raw)
			if err != nil {
				return err
			}

			coordinator := executor.NewRetryCoordinator(logger, executor.NewExecutor(logger, registry))
			eng := engine.NewEngine(logger, persist, coordinator)

			instance, err := eng.Run(ctx, engine.StartRequest{
				DefinitionID: def.ID,
				Input:        input,
				TriggeredBy:  "cli",
				TriggerType:  models.TriggerTypeManual,
			})
			if err != nil {
				return err
			}

			failures := map[string]string{}

			for _, task := range instance.Tasks {
				if task.Error != "" {
					failures[task.TaskID] = task.Error
				}
			}

			out, err := json.MarshalIndent(map[string]any{
				"instance_id": instance.ID,
				"status":      instance.Status,
				"context":     instance.Context,
				"failures":    failures,
			}, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, string(out))

			if instance.Status != models.InstanceStatusCompleted {
				return fmt.Errorf("%w: status %s", ErrRunNotCompleted, instance.Status)
			}

			return nil
		},
	}
}
