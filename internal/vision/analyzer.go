package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/classcam/internal/observability"
)

// AnalyzerConfig selects the models and thresholds for FaceAnalyzer.
type AnalyzerConfig struct {
	ModelsDir     string
	MinConfidence float32
	InputSize     int
}

// FaceAnalyzer is the ONNX Detector: RetinaFace boxes + ArcFace embeddings.
type FaceAnalyzer struct {
	detector      *RetinaFace
	embedder      *ArcFace
	minConfidence float32
}

// NewFaceAnalyzer loads det_10g.onnx and w600k_r50.onnx from cfg.ModelsDir.
// ONNX Runtime must already be initialised.
func NewFaceAnalyzer(cfg AnalyzerConfig) (*FaceAnalyzer, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewRetinaFace(detPath, cfg.MinConfidence, cfg.InputSize, nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewArcFace(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &FaceAnalyzer{detector: det, embedder: emb, minConfidence: cfg.MinConfidence}, nil
}

// Detect finds faces and embeds each one. Faces that cannot be cropped keep an empty embedding.
func (a *FaceAnalyzer) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}

	start := time.Now()
	raw, err := a.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	dets := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence < a.minConfidence {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if crop := cropFace(img, d.BBox); crop != nil {
			start = time.Now()
			emb, err := a.embedder.Embed(crop)
			if err != nil {
				slog.Warn("embed error", "error", err)
			} else {
				d.Embedding = emb
			}
			observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		}
		d.Index = len(dets)
		dets = append(dets, d)
	}
	return dets, nil
}

// Close releases both ONNX sessions.
func (a *FaceAnalyzer) Close() {
	if a.detector != nil {
		a.detector.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}

// DefaultRuntimeLibrary returns the ONNX Runtime shared library name for this OS.
func DefaultRuntimeLibrary() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

// SetupRuntime points onnxruntime_go at the shared library and initialises it.
// An empty libPath uses DefaultRuntimeLibrary.
func SetupRuntime(libPath string) error {
	if libPath == "" {
		libPath = DefaultRuntimeLibrary()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

// DestroyRuntime tears down the ONNX Runtime environment.
func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}
