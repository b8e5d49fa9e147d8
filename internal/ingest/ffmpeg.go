package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const maxFrameBytes = 10 * 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FrameCallback receives one JPEG frame.
type FrameCallback func(frame []byte) error

// FFmpegExtractor decodes a camera stream into JPEG frames with ffmpeg.
type FFmpegExtractor struct {
	Binary string

	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd
}

// ffmpegArgs builds the command line for sampling url at fps frames per second
// scaled to width pixels.
func ffmpegArgs(url, kind string, fps, width int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case kind == "rtsp" || strings.HasPrefix(url, "rtsp://") || strings.HasPrefix(url, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000",
		)
	case kind == "file":
		// Files are read at native speed so fps sampling matches a live feed.
		args = append(args, "-re")
	case strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	return append(args,
		"-i", url,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", fps, width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// Run starts ffmpeg and blocks until the stream ends or ctx is cancelled.
func (f *FFmpegExtractor) Run(ctx context.Context, url, kind string, fps, width int, callback FrameCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(url, kind, fps, width)...)

	f.mu.Lock()
	f.cancel = cancel
	f.cmd = cmd
	f.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg", "output", scanner.Text())
		}
	}()

	if err := splitJPEGStream(ctx, stdout, callback); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = cmd.Wait()
		return fmt.Errorf("read frames: %w", err)
	}
	return cmd.Wait()
}

// Stop kills the running ffmpeg process, if any.
func (f *FFmpegExtractor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

// splitJPEGStream cuts concatenated JPEG images out of r. A stream that ends
// before the first frame is an error; one that ends afterwards is not.
// Callback errors are logged and do not stop the stream.
func splitJPEGStream(ctx context.Context, r io.Reader, callback FrameCallback) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	frames := 0
	start := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := seekMarker(reader, jpegSOI); err != nil {
			if errors.Is(err, io.EOF) {
				if frames > 0 {
					return nil
				}
				return fmt.Errorf("no frames received after %s", time.Since(start).Round(100*time.Millisecond))
			}
			return err
		}

		frame, err := readFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) && frames > 0 {
				return nil
			}
			return err
		}

		frames++
		if err := callback(frame); err != nil {
			slog.Warn("frame callback", "error", err)
		}
	}
}

// seekMarker discards bytes up to and including the two-byte marker.
func seekMarker(r *bufio.Reader, marker []byte) error {
	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == marker[0] && b == marker[1] {
			return nil
		}
		prev = b
	}
}

// readFrame reads one image body after its SOI marker, returning the
// complete JPEG including both markers.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(jpegSOI)

	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if prev == jpegEOI[0] && b == jpegEOI[1] {
			return buf.Bytes(), nil
		}
		prev = b
		if buf.Len() > maxFrameBytes {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxFrameBytes)
		}
	}
}
