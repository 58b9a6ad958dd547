package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mboxport/mboxport/config"
	"github.com/mboxport/mboxport/eml"
	"github.com/mboxport/mboxport/imap"
	"github.com/mboxport/mboxport/label"
	"github.com/mboxport/mboxport/ledger"
	"github.com/mboxport/mboxport/model"
	"github.com/mboxport/mboxport/progress"
	"github.com/mboxport/mboxport/runner"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a converted message tree to an IMAP server, resumable via the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadUpload(cmd)
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
		logger.Info("starting upload", "dir", cfg.Dir, "host", cfg.Host, "provider", cfg.Provider, "resume", cfg.Resume, "dryRun", cfg.DryRun)

		order, err := loadOrder(cfg.PriorityFile)
		if err != nil {
			return err
		}

		var (
			led  *ledger.Ledger
			skip runner.SkipFunc
		)
		if !cfg.DryRun {
			led, err = ledger.Open(cfg.StateDir, cfg.Resume, logger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer func() {
				_ = led.Close()
			}()
			skip = func(m model.Message) bool {
				return led.Uploaded(m.Identity)
			}
		}

		r := runner.New(logger, skip)

		total, err := eml.Count(cfg.Dir)
		if err != nil {
			return fmt.Errorf("count message files: %w", err)
		}
		alreadyDone := 0
		if led != nil {
			alreadyDone = led.Snapshot().Uploaded
		}
		bar := progress.New("Uploading messages", total, alreadyDone, logLevel)
		progress.NewReporter(r, bar, logger)

		walkerOpts := eml.Options{
			Dir:    cfg.Dir,
			Ignore: label.NewIgnoreSet(cfg.IgnoreLabels),
		}
		if _, err := eml.NewProducer(walkerOpts, r, logger); err != nil {
			return fmt.Errorf("eml.NewProducer: %w", err)
		}

		uploaderOpts := imap.Options{
			Host:               cfg.Host,
			Port:               cfg.Port,
			Username:           cfg.Username,
			Password:           cfg.Password,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			ParentFolder:       cfg.ParentFolder,
			DryRun:             cfg.DryRun,
			MaxAttempts:        cfg.MaxAttempts,
			Order:              order,
		}
		if _, err := imap.NewUploader(uploaderOpts, r, led, logger); err != nil {
			return fmt.Errorf("imap.NewUploader: %w", err)
		}

		err = r.Start()
		bar.Stop()
		return err
	},
}

func init() {
	cobra.CheckErr(config.RegisterUploadFlags(uploadCmd))
	rootCmd.AddCommand(uploadCmd)
}
