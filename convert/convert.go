package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/emersion/go-maildir"
	"golang.org/x/sync/errgroup"

	"github.com/mboxport/mboxport/eml"
	"github.com/mboxport/mboxport/label"
	"github.com/mboxport/mboxport/model"
	"github.com/mboxport/mboxport/runner"
	"github.com/mboxport/mboxport/stats"
)

const (
	FormatEML     = "eml"
	FormatMaildir = "maildir"
)

type Options struct {
	OutDir string
	Order  *label.Order

	// ShowLabels collects the distinct resolved folders without writing
	// any files.
	ShowLabels bool

	// Format selects the on-disk layout: one .eml file per message under
	// its folder, or one maildir per folder.
	Format string

	// Workers bounds the parallel file writes. Folder resolution is pure
	// and cheap; only the disk I/O fans out.
	Workers int
}

// Converter consumes decoded messages from the pipeline and writes one
// file per message, grouped into subdirectories named by the resolved
// folder path.
type Converter struct {
	opts   Options
	runner *runner.Runner
	logger *slog.Logger

	mu       sync.Mutex
	folders  map[string]int
	made     map[string]bool
	maildirs map[string]maildir.Dir
}

func NewConverter(opts Options, r *runner.Runner, logger *slog.Logger) (*Converter, error) {
	if strings.TrimSpace(opts.OutDir) == "" && !opts.ShowLabels {
		return nil, fmt.Errorf("output directory is empty")
	}
	if opts.Order == nil {
		return nil, fmt.Errorf("priority order must not be nil")
	}
	switch opts.Format {
	case "", FormatEML:
		opts.Format = FormatEML
	case FormatMaildir:
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	converter := &Converter{
		opts:     opts,
		runner:   r,
		logger:   logger,
		folders:  make(map[string]int),
		made:     make(map[string]bool),
		maildirs: make(map[string]maildir.Dir),
	}
	r.AddStage("convert", converter.run)
	return converter, nil
}

func (c *Converter) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	work := c.runner.Work()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-work:
			if !ok {
				break loop
			}

			folder := c.opts.Order.Folder(msg.Labels)
			c.note(folder)

			if c.opts.ShowLabels {
				c.runner.EmitEvent(stats.Event{Stage: stats.StageConvert, Type: stats.EventTypeConverted, Identity: msg.Identity, Folder: folder})
				continue
			}

			g.Go(func() error {
				if err := c.write(folder, msg); err != nil {
					return err
				}
				c.runner.EmitEvent(stats.Event{Stage: stats.StageConvert, Type: stats.EventTypeConverted, Identity: msg.Identity, Folder: folder})
				if c.logger != nil {
					c.logger.Debug("converted message", "identity", msg.Identity, "folder", folder)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Converter) write(folder string, msg model.Message) error {
	if c.opts.Format == FormatMaildir {
		return c.writeMaildir(folder, msg)
	}
	return c.writeEML(folder, msg)
}

func (c *Converter) writeEML(folder string, msg model.Message) error {
	dir := filepath.Join(c.opts.OutDir, filepath.FromSlash(folder))
	if err := c.ensureDir(dir); err != nil {
		return err
	}

	path := filepath.Join(dir, msg.Identity+eml.Extension)
	if err := os.WriteFile(path, msg.Raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (c *Converter) writeMaildir(folder string, msg model.Message) error {
	dir, err := c.ensureMaildir(folder)
	if err != nil {
		return err
	}

	delivery, err := maildir.NewDelivery(string(dir))
	if err != nil {
		return fmt.Errorf("maildir delivery %s: %w", folder, err)
	}
	if _, err := delivery.Write(msg.Raw); err != nil {
		_ = delivery.Abort()
		return fmt.Errorf("maildir write %s: %w", folder, err)
	}
	if err := delivery.Close(); err != nil {
		return fmt.Errorf("maildir close %s: %w", folder, err)
	}
	return nil
}

func (c *Converter) ensureDir(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.made[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}
	c.made[dir] = true
	return nil
}

func (c *Converter) ensureMaildir(folder string) (maildir.Dir, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir, ok := c.maildirs[folder]; ok {
		return dir, nil
	}

	path := filepath.Join(c.opts.OutDir, filepath.FromSlash(folder))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create maildir %s: %w", path, err)
	}
	dir := maildir.Dir(path)
	if err := dir.Init(); err != nil {
		return "", fmt.Errorf("init maildir %s: %w", path, err)
	}
	c.maildirs[folder] = dir
	return dir, nil
}

func (c *Converter) note(folder string) {
	c.mu.Lock()
	c.folders[folder]++
	c.mu.Unlock()
}

// Folders returns the distinct resolved folders with their message counts.
func (c *Converter) Folders() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	folders := make(map[string]int, len(c.folders))
	for k, v := range c.folders {
		folders[k] = v
	}
	return folders
}

// FolderNames returns the distinct resolved folders, sorted.
func (c *Converter) FolderNames() []string {
	folders := c.Folders()
	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
