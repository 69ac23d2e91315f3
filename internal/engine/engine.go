// Package engine drives the external yt-dlp binary: a JSON dump for
// metadata resolution, and a monitored transfer for downloads. All
// classification of engine failures into the media error taxonomy
// happens here so callers only ever see ErrInvalidURL,
// ErrUnsupportedSource, ErrInvalidFormat or ErrUpstream.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/volo-project/volo/internal/media"
	"github.com/volo-project/volo/pkg/logger"
)

var log = logger.Get("Engine")

const (
	// BestFormat is the engine's default format selector; when requested,
	// the transfer resolves it to a concrete format chain first so the
	// output filename (and any cache key derived from it) is deterministic.
	BestFormat = "best"

	resolveTimeout = time.Second * 45
	maxFormats     = 15
)

type (
	Config struct {
		BinPath     string `yaml:"ytdlp_path" env:"YTDLP_PATH" env-default:"yt-dlp"`
		CookiesFile string `yaml:"cookies_file" env:"COOKIES_FILE_PATH" env-default:"cookies.txt"`
	}

	// Progress is one report from the engine's transfer hook. Percent is
	// derived from the monotonically increasing downloaded byte count, so
	// it never regresses within one transfer.
	Progress struct {
		Percent          float64
		SpeedBytesPerSec float64
		EtaSeconds       int
	}

	ProgressFunc func(Progress)

	// FileResult describes the artifact a completed transfer produced.
	// Filename is the storage name inside the output directory (not a path).
	FileResult struct {
		Filename string
		Title    string
		VideoID  string
		FormatID string
	}

	YtDlp struct {
		config Config
	}
)

func New(config Config) *YtDlp {
	return &YtDlp{config: config}
}

// rawInfo mirrors the subset of the yt-dlp -J dump the engine consumes.
type (
	rawFormat struct {
		FormatID   string  `json:"format_id"`
		FormatNote string  `json:"format_note"`
		Ext        string  `json:"ext"`
		Resolution string  `json:"resolution"`
		Filesize   *int64  `json:"filesize"`
		ACodec     string  `json:"acodec"`
		VCodec     string  `json:"vcodec"`
		Width      float64 `json:"width"`
		Height     float64 `json:"height"`
	}

	rawInfo struct {
		ID        string      `json:"id"`
		Title     string      `json:"title"`
		Thumbnail string      `json:"thumbnail"`
		Duration  float64     `json:"duration"`
		Uploader  string      `json:"uploader"`
		Channel   string      `json:"channel"`
		FormatID  string      `json:"format_id"`
		Formats   []rawFormat `json:"formats"`
	}
)

// ExtractInfo resolves the URL into Metadata via a skip-download JSON
// dump. Only video-capable formats are surfaced, capped at the first
// fifteen the engine reports.
func (engine *YtDlp) ExtractInfo(ctx context.Context, mediaURL string) (*media.Metadata, error) {
	info, err := engine.dump(ctx, mediaURL)
	if err != nil {
		return nil, err
	}

	formats := make([]media.EncodingOption, 0, maxFormats)
	for _, format := range info.Formats {
		if format.VCodec == "none" || format.VCodec == "" {
			continue
		}
		if len(formats) == maxFormats {
			break
		}

		formats = append(formats, media.EncodingOption{
			FormatID:   format.FormatID,
			Note:       format.FormatNote,
			Container:  orDefault(format.Ext, "mp4"),
			Resolution: formatResolution(format),
			SizeBytes:  format.Filesize,
			AudioCodec: orDefault(format.ACodec, "none"),
			VideoCodec: format.VCodec,
		})
	}

	return &media.Metadata{
		ID:              info.ID,
		Title:           info.Title,
		ThumbnailURL:    info.Thumbnail,
		DurationSeconds: info.Duration,
		Uploader:        orDefault(info.Uploader, orDefault(info.Channel, "Unknown")),
		Formats:         formats,
	}, nil
}

// Retrieve performs the byte transfer for the chosen format, invoking
// onProgress for every progress line the engine emits. The format is
// validated against the URL's format list before any bytes move; the
// 'best' alias is first resolved to the engine's concrete selection so
// the storage filename is stable across repeat downloads.
func (engine *YtDlp) Retrieve(ctx context.Context, mediaURL string, formatID string, outputDir string, onProgress ProgressFunc) (*FileResult, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	info, err := engine.dump(resolveCtx, mediaURL)
	cancel()
	if err != nil {
		return nil, err
	}

	target := SanitizeFormatKey(formatID)
	if target == "" || target == BestFormat {
		target = orDefault(SanitizeFormatKey(info.FormatID), BestFormat)
	} else if !formatKnown(info, target) {
		return nil, fmt.Errorf("%w: format '%s' is not available for this url", media.ErrInvalidFormat, formatID)
	}

	storageStem := fmt.Sprintf("%s_%s", info.ID, target)
	outputTemplate := filepath.Join(outputDir, storageStem+".%(ext)s")

	args := engine.baseArgs()
	args = append(args,
		"-f", target,
		"--newline",
		"--no-playlist",
		"--progress-template", progressTemplate,
		"-o", outputTemplate,
		mediaURL,
	)

	cmd := exec.CommandContext(ctx, engine.config.BinPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", media.ErrUpstream, err.Error())
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to launch engine: %s", media.ErrUpstream, err.Error())
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if report, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(report)
		}
	}

	if err := cmd.Wait(); err != nil {
		return nil, classifyFailure(stderr.String(), err)
	}

	filename, err := findArtifact(outputDir, storageStem)
	if err != nil {
		return nil, err
	}

	log.Debugf("Transfer for '%s' (format %s) produced artifact %s\n", mediaURL, target, filename)
	return &FileResult{
		Filename: filename,
		Title:    info.Title,
		VideoID:  info.ID,
		FormatID: target,
	}, nil
}

// dump runs a skip-download JSON dump for the URL and decodes it.
func (engine *YtDlp) dump(ctx context.Context, mediaURL string) (*rawInfo, error) {
	args := engine.baseArgs()
	args = append(args, "-J", "--skip-download", mediaURL)

	cmd := exec.CommandContext(ctx, engine.config.BinPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, classifyFailure(stderr.String(), err)
	}

	var info rawInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("%w: malformed engine metadata: %s", media.ErrUpstream, err.Error())
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: engine reported no media for url", media.ErrUpstream)
	}

	return &info, nil
}

func (engine *YtDlp) baseArgs() []string {
	args := []string{"--no-warnings"}
	if engine.config.CookiesFile != "" {
		if _, err := os.Stat(engine.config.CookiesFile); err == nil {
			args = append(args, "--cookies", engine.config.CookiesFile)
		}
	}

	return args
}

// classifyFailure maps the engine's stderr output on to the media error
// taxonomy. Anything unrecognised is an upstream failure carrying the
// engine's own (trimmed) explanation.
func classifyFailure(stderr string, err error) error {
	detail := strings.TrimSpace(stderr)
	lowered := strings.ToLower(detail)

	switch {
	case strings.Contains(lowered, "is not a valid url"):
		return fmt.Errorf("%w: %s", media.ErrInvalidURL, detail)
	case strings.Contains(lowered, "unsupported url"):
		return fmt.Errorf("%w: %s", media.ErrUnsupportedSource, detail)
	case strings.Contains(lowered, "requested format is not available"):
		return fmt.Errorf("%w: %s", media.ErrInvalidFormat, detail)
	}

	if detail == "" {
		detail = err.Error()
	}

	return fmt.Errorf("%w: %s", media.ErrUpstream, detail)
}

func formatKnown(info *rawInfo, formatID string) bool {
	for _, format := range info.Formats {
		if format.FormatID == formatID {
			return true
		}
	}

	return false
}

// findArtifact locates the file the transfer wrote for the given stem.
// The extension is the engine's choice, hence the directory scan.
func findArtifact(outputDir string, stem string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("%w: cannot inspect output directory: %s", media.ErrUpstream, err.Error())
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), stem+".") {
			return entry.Name(), nil
		}
	}

	return "", fmt.Errorf("%w: transfer completed but no file was created", media.ErrUpstream)
}

var formatKeyPattern = regexp.MustCompile(`[^a-zA-Z0-9+]`)

// SanitizeFormatKey strips everything but the characters a yt-dlp
// format chain can legitimately contain, defusing shell- or
// path-hostile formatId values before they reach the engine.
func SanitizeFormatKey(formatID string) string {
	return formatKeyPattern.ReplaceAllString(formatID, "")
}

func formatResolution(format rawFormat) string {
	if format.Resolution != "" {
		return format.Resolution
	}
	if format.Width > 0 && format.Height > 0 {
		return fmt.Sprintf("%.0fx%.0f", format.Width, format.Height)
	}

	return "?x?"
}

func orDefault(value string, dflt string) string {
	if value == "" {
		return dflt
	}

	return value
}
