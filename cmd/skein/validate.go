package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	skeincmd "github.com/skein-dev/skein/pkg/cmd"
	"github.com/skein-dev/skein/pkg/definitions"
	"github.com/skein-dev/skein/pkg/log"
	"github.com/skein-dev/skein/pkg/persistence/memory"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a workflow document without running it",
		ArgsUsage: "<document.json>",
		Flags: []cli.Flag{
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
				return errors.New("usage: skein validate <document.json>")
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}

			logger := log.WithModule("validate")
			store := definitions.NewStore(logger, memory.NewPersistence().Definitions(), skeincmd.NewRegistry(logger))

			def, err := store.IngestDocument(ctx, raw)
			if err != nil {
				var validationErr *definitions.ValidationError
				if errors.As(err, &validationErr) {
					fmt.Fprintf(os.Stdout, "Document %q is invalid:\n", validationErr.Name)

					for _, problem := range validationErr.Problems {
						fmt.Fprintf(os.Stdout, "  - %s\n", problem)
					}

					return errors.New("validation failed")
				}

				return err
			}

			fmt.Fprintf(os.Stdout, "Document %q is valid (%d tasks, entry %s)\n", def.Name, len(def.Tasks), def.EntryTaskID)

			return nil
		},
	}
}
