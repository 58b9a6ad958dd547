package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mboxport/mboxport/stats"
)

var checkTopN int

var checkCmd = &cobra.Command{
	Use:   "check [directory]",
	Short: "Show a converted export tree with per-folder file counts and sizes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := args[0]

		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", root)
		}

		report, err := buildReport(root)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%.2f MB, %d files)\n", filepath.Base(filepath.Clean(root)), mb(report.totalBytes()), report.files)
		for i, child := range report.children {
			printTree(child, "", i == len(report.children)-1)
		}

		counts := make(map[string]int)
		collectCounts(report, "", counts)
		if len(counts) > 0 {
			fmt.Printf("\nTop %d folders by message count:\n", checkTopN)
			stats.PrettyPrintTop(counts, checkTopN)
		}

		return nil
	},
}

func init() {
	checkCmd.Flags().IntVarP(&checkTopN, "top", "t", 10, "Number of folders to list in the count ranking")
	rootCmd.AddCommand(checkCmd)
}

type dirReport struct {
	name     string
	files    int
	bytes    int64
	children []*dirReport
}

func (r *dirReport) totalBytes() int64 {
	total := r.bytes
	for _, child := range r.children {
		total += child.totalBytes()
	}
	return total
}

func buildReport(path string) (*dirReport, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	report := &dirReport{name: filepath.Base(path)}
	for _, entry := range entries {
		if entry.IsDir() {
			child, err := buildReport(filepath.Join(path, entry.Name()))
			if err != nil {
				return nil, err
			}
			report.children = append(report.children, child)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		report.files++
		report.bytes += info.Size()
	}

	return report, nil
}

func printTree(r *dirReport, prefix string, last bool) {
	branch := "├── "
	childPrefix := prefix + "│   "
	if last {
		branch = "└── "
		childPrefix = prefix + "    "
	}

	fmt.Printf("%s%s%s (%.2f MB, %d files)\n", prefix, branch, r.name, mb(r.totalBytes()), r.files)

	for i, child := range r.children {
		printTree(child, childPrefix, i == len(r.children)-1)
	}
}

// collectCounts flattens the tree into folder-path → direct message-file
// count, matching how the uploader will address the folders.
func collectCounts(r *dirReport, prefix string, counts map[string]int) {
	for _, child := range r.children {
		path := child.name
		if prefix != "" {
			path = prefix + "/" + child.name
		}
		if child.files > 0 {
			counts[path] = child.files
		}
		collectCounts(child, path, counts)
	}
}

func mb(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}
