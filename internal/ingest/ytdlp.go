package ingest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ResolveYouTubeURL asks yt-dlp for the direct media URL behind a YouTube link.
// The returned URL expires, so callers resolve again before every reconnect.
func ResolveYouTubeURL(ctx context.Context, pageURL string) (string, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp",
		"--get-url",
		"--format", "best[height<=1080]",
		"--no-playlist",
		pageURL,
	)

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	return firstURL(string(output))
}

// firstURL picks the first non-empty line; yt-dlp prints separate video and
// audio URLs for some formats.
func firstURL(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", errors.New("yt-dlp returned no url")
}
