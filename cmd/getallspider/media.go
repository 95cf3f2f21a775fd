package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/webscrapy/getallspider/internal/log"
	"github.com/webscrapy/getallspider/internal/media"
)

// NewMediaCmd creates the media command.
// It audits a mirrored directory tree for privacy-sensitive image metadata.
func NewMediaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media <dir>",
		Short: "Audit mirrored images for embedded EXIF metadata",
		Long: `Media walks a mirrored directory tree and reports EXIF metadata embedded
in JPEG, TIFF, and HEIC files.

A mirror is often republished; EXIF tags in its images can leak more than
the original site intended:
- GPS coordinates of where a photo was taken
- Camera serial numbers tying photos to one device
- Author names, editing software, host computer names
- Original capture timestamps

Examples:
  # Audit a mirror directory
  getallspider media ./example.com

  # Output the findings in Markdown format
  getallspider media --markdown ./example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runMediaCmd,
	}

	cmd.Flags().BoolP("markdown", "m", false,
		"Output findings in Markdown format")

	return cmd
}

// runMediaCmd executes the media command.
func runMediaCmd(cmd *cobra.Command, args []string) error {
	dir := args[0]

	markdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}

	logger := log.NewLogger(os.Stderr, getVerboseFlag(cmd))

	auditor := media.NewAuditor(media.WithAuditLogger(logger))
	findings, err := auditor.Audit(context.Background(), dir)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	// Most severe first, then stable by path and tag.
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Tag < findings[j].Tag
	})

	if markdown {
		return outputFindingsMarkdown(dir, findings)
	}
	return outputFindingsText(dir, findings)
}

// outputFindingsText prints the audit findings in human-readable form.
func outputFindingsText(dir string, findings []media.Finding) error {
	fmt.Printf("Media audit: %s\n", dir)
	fmt.Println(strings.Repeat("=", 60))

	if len(findings) == 0 {
		fmt.Println("\nNo EXIF metadata found in mirrored images.")
		return nil
	}

	fmt.Printf("\nFindings (%d):\n\n", len(findings))
	for _, f := range findings {
		fmt.Printf("  [%s] %s\n", f.Severity, f.Title)
		fmt.Printf("      File:  %s\n", f.Path)
		fmt.Printf("      Tag:   %s = %s\n", f.Tag, f.Value)
		if f.Description != "" {
			fmt.Printf("      Note:  %s\n", f.Description)
		}
		fmt.Println()
	}

	fmt.Println("Strip EXIF metadata before republishing these files.")
	return nil
}

// outputFindingsMarkdown prints the audit findings in Markdown format.
func outputFindingsMarkdown(dir string, findings []media.Finding) error {
	fmt.Printf("# Media Audit: %s\n\n", dir)

	if len(findings) == 0 {
		fmt.Println("No EXIF metadata found in mirrored images.")
		return nil
	}

	fmt.Printf("%d findings.\n\n", len(findings))
	fmt.Println("| Severity | File | Tag | Value |")
	fmt.Println("|----------|------|-----|-------|")
	for _, f := range findings {
		fmt.Printf("| %s | `%s` | %s | %s |\n", f.Severity, f.Path, f.Tag, f.Value)
	}

	fmt.Println("\nStrip EXIF metadata before republishing these files.")
	return nil
}
