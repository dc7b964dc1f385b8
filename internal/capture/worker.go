package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"time"

	"github.com/technosupport/ppe-guard/internal/metrics"
)

// StreamURLs returns the rtsps-then-rtsp URL pair a camera's
// connection triple expands to: `rtsps://host:port/token?enableSrtp`
// tried first, falling back to `rtsp://host:(port+6)/token`.
func StreamURLs(host string, port int, token string) (primary, fallback string) {
	primary = fmt.Sprintf("rtsps://%s:%d/%s?enableSrtp", host, port, token)
	fallback = fmt.Sprintf("rtsp://%s:%d/%s", host, port+6, token)
	return
}

// Config is the subset of a camera's fields the capture worker needs.
type Config struct {
	CCTVID    int64
	Name      string
	Host      string
	Port      int
	Token     string
	FrameSkip int
	QueueSize int
}

const (
	maxConsecutiveFails  = 10
	maxReconnectAttempts = 5
	baseRetryDelay       = 1 * time.Second
	maxRetryDelay        = 30 * time.Second
)

// Worker owns one camera's ffmpeg subprocess, its raw/annotated frame
// slots, and the bounded detection-frame queue.
type Worker struct {
	cfg   Config
	slots *Slots
	queue chan []byte

	cmd *exec.Cmd
}

// NewWorker constructs a capture worker. queue is the bounded
// detection-frame channel; sends are non-blocking (drop if full),
// matching the append-without-backpressure deque in the original.
func NewWorker(cfg Config, slots *Slots) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 3
	}
	if cfg.FrameSkip <= 0 {
		cfg.FrameSkip = 1
	}
	return &Worker{cfg: cfg, slots: slots, queue: make(chan []byte, cfg.QueueSize)}
}

// Queue exposes the channel the detection worker reads from.
func (w *Worker) Queue() <-chan []byte { return w.queue }

func (w *Worker) cameraLabel() string { return strconv.FormatInt(w.cfg.CCTVID, 10) }

// Run drives the whole capture lifecycle until ctx is canceled: open,
// read loop with reconnect-on-failure, placeholder publication on
// exhausted retries. Cooperative cancellation is checked at the top of
// every loop iteration, per the per-camera supervisor's stop contract.
func (w *Worker) Run(ctx context.Context) {
	primary, fallback := StreamURLs(w.cfg.Host, w.cfg.Port, w.cfg.Token)

	frames, stderrDone, err := w.openFFmpeg(ctx, primary)
	if err != nil {
		log.Printf("[CAPTURE %d] primary open failed (%v), trying fallback", w.cfg.CCTVID, err)
		frames, stderrDone, err = w.openFFmpeg(ctx, fallback)
		if err != nil {
			log.Printf("[CAPTURE %d] fallback open failed (%v): stream failed", w.cfg.CCTVID, err)
			w.slots.Raw.Set(PlaceholderStreamFailed())
			w.slots.Annotated.Set(PlaceholderStreamFailed())
			metrics.StreamFailuresTotal.WithLabelValues(w.cameraLabel()).Inc()
			return
		}
	}
	_ = stderrDone

	fails := 0
	frameCount := 0

	for {
		select {
		case <-ctx.Done():
			w.killProcess()
			return
		case frame, ok := <-frames:
			if !ok {
				fails++
				log.Printf("[CAPTURE %d] read failed (%d/%d)", w.cfg.CCTVID, fails, maxConsecutiveFails)
				if fails < maxConsecutiveFails {
					continue
				}

				w.killProcess()
				w.slots.Annotated.Set(PlaceholderReconnecting())
				metrics.ReconnectsTotal.WithLabelValues(w.cameraLabel()).Inc()
				newFrames, newDone, rerr := w.reconnect(ctx, primary, fallback)
				if rerr != nil {
					w.slots.Annotated.Set(PlaceholderFailedPermanently())
					metrics.StreamFailuresTotal.WithLabelValues(w.cameraLabel()).Inc()
					log.Printf("[CAPTURE %d] reconnect exhausted: %v", w.cfg.CCTVID, rerr)
					select {
					case <-ctx.Done():
						return
					case <-time.After(5 * time.Second):
						continue
					}
				}
				frames, stderrDone = newFrames, newDone
				_ = stderrDone
				fails = 0
				continue
			}

			fails = 0
			w.slots.Raw.Set(frame)
			metrics.FramesCapturedTotal.WithLabelValues(w.cameraLabel()).Inc()
			if frameCount%w.cfg.FrameSkip == 0 {
				select {
				case w.queue <- frame:
				default:
					metrics.FramesDroppedTotal.WithLabelValues(w.cameraLabel(), "detect_queue").Inc()
				}
			}
			frameCount++
		}
	}
}

// reconnect retries open with exponential backoff capped at
// maxRetryDelay, up to maxReconnectAttempts times.
func (w *Worker) reconnect(ctx context.Context, primary, fallback string) (<-chan []byte, <-chan struct{}, error) {
	delay := baseRetryDelay
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxRetryDelay {
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}

		log.Printf("[CAPTURE %d] reconnect attempt %d/%d", w.cfg.CCTVID, attempt+1, maxReconnectAttempts)
		frames, done, err := w.openFFmpeg(ctx, primary)
		if err != nil {
			frames, done, err = w.openFFmpeg(ctx, fallback)
		}
		if err == nil {
			log.Printf("[CAPTURE %d] reconnected", w.cfg.CCTVID)
			return frames, done, nil
		}
	}
	return nil, nil, fmt.Errorf("capture %d: reconnect exhausted after %d attempts", w.cfg.CCTVID, maxReconnectAttempts)
}

// openFFmpeg spawns ffmpeg forcing TCP transport and MJPEG output,
// returning a channel of decoded JPEG frames read off stdout.
// Grounded on the MJPEG stream manager's captureFFmpeg/extractJPEGFrame
// pair: same argument set, same length-delimiting-by-marker approach.
func (w *Worker) openFFmpeg(ctx context.Context, url string) (<-chan []byte, <-chan struct{}, error) {
	args := []string{
		"-rtsp_transport", "tcp",
		"-i", url,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-r", "5",
		"-q:v", "5",
		"-",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	w.cmd = cmd

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		buf := make([]byte, 0, 1<<20)
		chunk := make([]byte, 8192)
		for {
			n, rerr := stdout.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
				for {
					frame := extractJPEGFrame(&buf)
					if frame == nil {
						break
					}
					select {
					case frames <- frame:
					case <-ctx.Done():
						return
					}
				}
			}
			if rerr != nil {
				if rerr != io.EOF {
					log.Printf("[CAPTURE %d] stdout read error: %v", w.cfg.CCTVID, rerr)
				}
				return
			}
		}
	}()

	return frames, done, nil
}

func (w *Worker) killProcess() {
	if w.cmd != nil && w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	w.cmd = nil
}

// extractJPEGFrame pulls one complete FFD8..FFD9-delimited JPEG frame
// out of buf, shrinking buf to whatever follows it.
func extractJPEGFrame(buf *[]byte) []byte {
	b := *buf
	if len(b) < 4 {
		return nil
	}
	start := -1
	for i := 0; i < len(b)-1; i++ {
		if b[i] == 0xFF && b[i+1] == 0xD8 {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}
	end := -1
	for i := start + 2; i < len(b)-1; i++ {
		if b[i] == 0xFF && b[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		return nil
	}
	frame := make([]byte, end-start)
	copy(frame, b[start:end])
	*buf = b[end:]
	return frame
}
