package media

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	exif "github.com/dsoprea/go-exif/v3"
)

// Severity represents the privacy risk level of a metadata finding.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons and sorting. The String() method provides
// human-readable output when needed.
type Severity int

const (
	// SeverityLow indicates metadata with limited impact on its own.
	// Examples: editing software names, timestamps.
	SeverityLow Severity = iota

	// SeverityMedium indicates metadata that helps identify a device.
	// Examples: camera make and model, host computer names.
	SeverityMedium

	// SeverityHigh indicates metadata that identifies a person or a
	// specific device. Examples: author names, device serial numbers.
	SeverityHigh

	// SeverityCritical indicates metadata that discloses a location.
	// Examples: GPS coordinates.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Finding is one privacy-sensitive EXIF tag found in a mirrored image.
type Finding struct {
	// Path is the image location relative to the audited directory.
	Path string `json:"path"`

	// Tag is the EXIF tag name that triggered the finding.
	Tag string `json:"tag"`

	// Value is the formatted tag value.
	Value string `json:"value"`

	// Kind groups related tags (gps, serial, camera, author, software,
	// datetime, computer).
	Kind string `json:"kind"`

	// Title is a short human-readable summary.
	Title string `json:"title"`

	// Description explains the privacy impact.
	Description string `json:"description"`

	// Severity is the privacy risk level.
	Severity Severity `json:"severity"`
}

// Auditor walks a mirror directory and extracts EXIF metadata from the
// images it contains. Only formats that can carry EXIF are inspected.
type Auditor struct {
	// maxImageSize limits the size of images to inspect (default 5MB).
	maxImageSize int64

	// imagePattern matches file names of EXIF-capable formats.
	imagePattern *regexp.Regexp

	// logger records skipped and unreadable files.
	logger *slog.Logger
}

// AuditorOption configures an Auditor.
type AuditorOption func(*Auditor)

// WithMaxImageSize sets the maximum image size to inspect, in bytes.
func WithMaxImageSize(size int64) AuditorOption {
	return func(a *Auditor) {
		if size > 0 {
			a.maxImageSize = size
		}
	}
}

// WithAuditLogger sets the logger for audit diagnostics.
func WithAuditLogger(logger *slog.Logger) AuditorOption {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuditor creates an Auditor with default limits.
func NewAuditor(opts ...AuditorOption) *Auditor {
	a := &Auditor{
		maxImageSize: 5 * 1024 * 1024, // 5MB
		imagePattern: regexp.MustCompile(`(?i)\.(jpe?g|tiff?|heic)$`),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Audit walks the directory and reports every privacy-sensitive EXIF tag
// found in its images. The returned findings are ordered by walk order
// (lexical within each directory).
func (a *Auditor) Audit(ctx context.Context, dir string) ([]Finding, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	findings := make([]Finding, 0)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !a.imagePattern.MatchString(d.Name()) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			// File vanished mid-walk
			return nil
		}
		if fi.Size() > a.maxImageSize {
			a.logger.Debug("image exceeds size limit, skipping",
				"path", path, "size", fi.Size())
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		data, err := os.ReadFile(path) //nolint:gosec // the walk stays inside the audited directory
		if err != nil {
			a.logger.Debug("failed to read image", "path", path, "error", err)
			return nil
		}

		findings = append(findings, a.auditImage(data, rel)...)
		return nil
	})
	if err != nil {
		return findings, err
	}

	return findings, nil
}

// auditImage extracts EXIF data from image bytes and classifies the tags.
func (a *Auditor) auditImage(data []byte, path string) []Finding {
	// Images without EXIF are the common case, not an error
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	findings := make([]Finding, 0)
	for _, entry := range entries {
		tagName := entry.TagName
		value := entry.Formatted

		switch tagName {
		// GPS coordinates - Critical
		case "GPSLatitude", "GPSLongitude", "GPSLatitudeRef", "GPSLongitudeRef":
			findings = append(findings, Finding{
				Path:        path,
				Tag:         tagName,
				Value:       value,
				Kind:        "gps",
				Title:       "GPS Coordinates in Image EXIF",
				Description: "The image contains GPS coordinates in its EXIF metadata. This reveals the location where the image was taken.",
				Severity:    SeverityCritical,
			})

		// Serial numbers - High severity
		case "SerialNumber", "CameraSerialNumber", "BodySerialNumber", "LensSerialNumber":
			findings = append(findings, Finding{
				Path:        path,
				Tag:         tagName,
				Value:       value,
				Kind:        "serial",
				Title:       "Device Serial Number in Image EXIF",
				Description: "The image contains a device serial number. This is a unique identifier that can track the device across photos.",
				Severity:    SeverityHigh,
			})

		// Author/Copyright - Identity leak
		case "Artist", "Author", "Copyright", "XPAuthor":
			findings = append(findings, Finding{
				Path:        path,
				Tag:         tagName,
				Value:       value,
				Kind:        "author",
				Title:       "Author/Copyright Information in Image EXIF",
				Description: "The image contains author or copyright information that could identify the creator.",
				Severity:    SeverityHigh,
			})

		// Camera identification
		case "Make", "Model":
			findings = append(findings, Finding{
				Path:        path,
				Tag:         tagName,
				Value:       value,
				Kind:        "camera",
				Title:       "Camera Information in Image EXIF",
				Description: "The image contains camera make/model information. This can help identify the device used.",
				Severity:    SeverityMedium,
			})

		// Host computer
		case "HostComputer":
			findings = append(findings, Finding{
				Path:        path,
				Tag:         tagName,
				Value:       value,
				Kind:        "computer",
				Title:       "Host Computer in Image EXIF",
				Description: "The image contains the name of the computer used to process it.",
				Severity:    SeverityMedium,
			})

		// Software information
		case "Software", "ProcessingSoftware":
			findings = append(findings, Finding{
				Path:        path,
				Tag:         tagName,
				Value:       value,
				Kind:        "software",
				Title:       "Software Information in Image EXIF",
				Description: "The image contains software information that reveals editing tools or operating system used.",
				Severity:    SeverityLow,
			})

		// DateTime - Can reveal timezone and activity patterns
		case "DateTimeOriginal", "DateTimeDigitized", "DateTime":
			findings = append(findings, Finding{
				Path:        path,
				Tag:         tagName,
				Value:       value,
				Kind:        "datetime",
				Title:       "Timestamp in Image EXIF",
				Description: "The image contains timestamp information. Combined with other data, this can help determine timezone and activity patterns.",
				Severity:    SeverityLow,
			})
		}
	}

	return findings
}
