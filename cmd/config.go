package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/archdrift/internal/aiconnectors"
	"github.com/archdrift/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "archdrift.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
			{
				Name:  "check",
				Usage: "Report which credentials are configured",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "ping",
						Usage: "Send a test request to the AI provider",
					},
				},
				Action: runConfigCheck,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	configPath := c.String("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}

func runConfigCheck(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result := CheckRequiredConfig(cfg)
	PrintConfigCheck(c.App.Writer, result)

	if c.Bool("ping") && len(result.Missing) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		connector, err := aiconnectors.NewConnector(ctx, connectorOptions(cfg))
		if err != nil {
			return fmt.Errorf("failed to create AI connector: %w", err)
		}
		if err := connector.Ping(ctx); err != nil {
			return fmt.Errorf("AI provider check failed: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "✓ %s accepted a test request for %s\n", cfg.AI.Provider, connector.GetModel())
	}

	if len(result.Missing) > 0 {
		return fmt.Errorf("%d required setting(s) missing", len(result.Missing))
	}
	return nil
}
