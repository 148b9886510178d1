package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"ContentPipeline/internal/app"
	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/logging"
	"ContentPipeline/internal/usecase"
	"ContentPipeline/pkg/logger"
)

func main() {
	root := &cli.Command{
		Name:  "contentpipeline",
		Usage: "Autonomous content-publishing pipeline",
		Commands: []*cli.Command{
			runCmd(),
			auditCmd(),
			publishCmd(),
			watchCmd(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		logger.New("main").Printf("error: %v", err)
		os.Exit(1)
	}
}

func buildApp(ctx context.Context) (*app.Application, error) {
	cfg := config.Load()
	return app.New(ctx, cfg, logging.New(cfg.Logging.Level))
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one batch sweep across the pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "Sweep only items in this status"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			if status := cmd.String("status"); status != "" {
				if !domain.KnownStatus(domain.Status(status)) {
					return fmt.Errorf("unknown status %q", status)
				}
				batch, err := application.RunStage(ctx, domain.Status(status))
				if err != nil {
					return err
				}
				printBatch(batch.Processed, batch.Succeeded, batch.Failed, batch.Skipped)
				return nil
			}

			batch, err := application.RunBatch(ctx)
			if err != nil {
				return err
			}
			printBatch(batch.Processed, batch.Succeeded, batch.Failed, batch.Skipped)
			return nil
		},
	}
}

func printBatch(processed, succeeded, failed, skipped int) {
	fmt.Printf("processed=%d succeeded=%d failed=%d skipped=%d\n",
		processed, succeeded, failed, skipped)
}

func auditCmd() *cli.Command {
	return &cli.Command{
		Name:      "audit",
		Usage:     "Run a quality audit for one content item",
		ArgsUsage: "<content-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			contentID := cmd.Args().First()
			if contentID == "" {
				return fmt.Errorf("content-id argument is required")
			}

			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			audit, err := application.AuditContent(ctx, contentID)
			if err != nil {
				return err
			}

			fmt.Printf("audit %s: score %d/100\n", audit.AuditID, audit.Score)
			for _, dim := range audit.Dimensions {
				fmt.Printf("  %-22s %3d (weight %d)\n", dim.Name, dim.Score, dim.Weight)
			}
			for _, rec := range audit.Recommendations {
				fmt.Printf("  - %s\n", rec)
			}
			return nil
		},
	}
}

func publishCmd() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish one approved content item",
		ArgsUsage: "<content-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Bypass the quality gate"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			contentID := cmd.Args().First()
			if contentID == "" {
				return fmt.Errorf("content-id argument is required")
			}

			application, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Publish(ctx, contentID, cmd.Bool("force"))
			if err != nil {
				return err
			}

			fmt.Printf("status=%s\n", result.Status)
			if result.URL != "" {
				fmt.Printf("url=%s\n", result.URL)
			}
			if result.Status == usecase.PublishGateFailed {
				fmt.Printf("score=%d\n", result.Score)
				for _, rec := range result.Recommendations {
					fmt.Printf("  - %s\n", rec)
				}
			}
			if result.RollbackPerformed {
				fmt.Println("rollback performed")
			}
			return nil
		},
	}
}

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run autonomous sweeps until interrupted",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := buildApp(watchCtx)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Watch(watchCtx)
		},
	}
}
