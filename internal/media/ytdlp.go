package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tgreddit/internal/metrics"
)

const outputTemplate = "video_%(width)sx%(height)s.%(ext)s"

var dimensionsRe = regexp.MustCompile(`_(\d+)x(\d+)\.`)

// YtDlp downloads videos by running the yt-dlp executable.
type YtDlp struct {
	path    string
	timeout time.Duration
	log     *slog.Logger
}

// NewYtDlp creates a YtDlp downloader using the executable at path.
func NewYtDlp(path string, timeout time.Duration, log *slog.Logger) *YtDlp {
	return &YtDlp{path: path, timeout: timeout, log: log}
}

// Download saves the video at url and reports its dimensions when yt-dlp
// knows them.
func (y *YtDlp) Download(ctx context.Context, url string) (*File, error) {
	dir, err := tempDir("tgreddit-video-")
	if err != nil {
		return nil, err
	}
	f, err := y.download(ctx, dir, url)
	if err != nil {
		_ = os.RemoveAll(dir)
		metrics.MediaDownloads.WithLabelValues("yt-dlp", metrics.OutcomeFailure).Inc()
		return nil, err
	}
	metrics.MediaDownloads.WithLabelValues("yt-dlp", metrics.OutcomeSuccess).Inc()
	return f, nil
}

func (y *YtDlp) download(ctx context.Context, dir, url string) (*File, error) {
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	y.log.Debug("running yt-dlp", "url", url, "dir", dir)
	cmd := exec.CommandContext(ctx, y.path, ytDlpArgs(dir, url)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp %s: %w: %s", url, err, lastLine(out))
	}

	path, err := findOutput(dir)
	if err != nil {
		return nil, err
	}
	w, h := parseDimensions(filepath.Base(path))
	return &File{Path: path, Width: w, Height: h, dir: dir}, nil
}

func ytDlpArgs(dir, url string) []string {
	return []string{"--paths", dir, "--output", outputTemplate, url}
}

func findOutput(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read download dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, "video_") && !strings.HasSuffix(name, ".part") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", errors.New("yt-dlp produced no output file")
}

// parseDimensions extracts width and height from a file name produced by
// the output template. Unknown dimensions yield zeros.
func parseDimensions(name string) (int, int) {
	m := dimensionsRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0
	}
	w, errW := strconv.Atoi(m[1])
	h, errH := strconv.Atoi(m[2])
	if errW != nil || errH != nil {
		return 0, 0
	}
	return w, h
}

func lastLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
