package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mboxport/mboxport/config"
	"github.com/mboxport/mboxport/convert"
	"github.com/mboxport/mboxport/filter"
	"github.com/mboxport/mboxport/label"
	"github.com/mboxport/mboxport/mbox"
	"github.com/mboxport/mboxport/progress"
	"github.com/mboxport/mboxport/runner"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Extract an mbox archive into per-message files grouped by label folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConvert(cmd)
		if err != nil {
			return err
		}

		logger, logLevel, cleanup, err := setupLogger(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()
		slog.SetDefault(logger)
		logger.Info("starting conversion", "mbox", cfg.MboxPath, "out", cfg.OutDir, "showLabels", cfg.ShowLabels, "format", cfg.Format)

		order, err := loadOrder(cfg.PriorityFile)
		if err != nil {
			return err
		}

		f, err := filter.New(filter.Options{
			IncludeHeader: cfg.IncludeHeader,
			IncludeBody:   cfg.IncludeBody,
			IncludeLabel:  cfg.IncludeLabel,
			ExcludeHeader: cfg.ExcludeHeader,
			ExcludeBody:   cfg.ExcludeBody,
			ExcludeLabel:  cfg.ExcludeLabel,
		})
		if err != nil {
			return err
		}

		r := runner.New(logger, nil)

		var bar *progress.Bar
		if !cfg.ShowLabels {
			total, err := mbox.Count(cfg.MboxPath)
			if err != nil {
				return fmt.Errorf("count mbox entries: %w", err)
			}
			bar = progress.New("Converting messages", total, 0, logLevel)
		}
		progress.NewReporter(r, bar, logger)

		readerOpts := mbox.Options{
			Path:   cfg.MboxPath,
			Ignore: label.NewIgnoreSet(cfg.IgnoreLabels),
			Filter: f,
		}
		if _, err := mbox.NewProducer(readerOpts, r, logger); err != nil {
			return fmt.Errorf("mbox.NewProducer: %w", err)
		}

		converter, err := convert.NewConverter(convert.Options{
			OutDir:     cfg.OutDir,
			Order:      order,
			ShowLabels: cfg.ShowLabels,
			Format:     cfg.Format,
			Workers:    cfg.Workers,
		}, r, logger)
		if err != nil {
			return fmt.Errorf("convert.NewConverter: %w", err)
		}

		err = r.Start()
		if bar != nil {
			bar.Stop()
		}
		if err != nil {
			return err
		}

		if cfg.ShowLabels {
			folders := converter.Folders()
			fmt.Printf("%d distinct folders:\n", len(folders))
			for _, name := range converter.FolderNames() {
				fmt.Printf("  %s (%d)\n", name, folders[name])
			}
		}

		return nil
	},
}

func loadOrder(path string) (*label.Order, error) {
	if path == "" {
		return label.DefaultOrder(), nil
	}
	return label.LoadOrder(path)
}

func init() {
	cobra.CheckErr(config.RegisterConvertFlags(convertCmd))
	rootCmd.AddCommand(convertCmd)
}
