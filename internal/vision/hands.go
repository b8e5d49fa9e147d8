package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/classcam/internal/observability"
)

// Hand landmark indices of the 21-point hand model.
const (
	HandWrist     = 0
	HandThumbTip  = 4
	HandIndexTip  = 8
	HandMiddleTip = 12
	HandRingTip   = 16
	HandPinkyTip  = 20

	handLandmarks = 21
)

// Hand is one detected hand. Landmarks are pixel coordinates, wrist first.
type Hand struct {
	Landmarks [][2]float32 `json:"landmarks"`
	Score     float32      `json:"score"`
}

// Wrist returns the wrist landmark.
func (h Hand) Wrist() ([2]float32, bool) {
	if len(h.Landmarks) == 0 {
		return [2]float32{}, false
	}
	return h.Landmarks[HandWrist], true
}

// HandDetector finds hands in a frame.
type HandDetector interface {
	DetectHands(ctx context.Context, img image.Image) ([]Hand, error)
}

// PersonalZone is the region around a face where a raised hand counts as
// that person's: three face heights above the face down to half a face
// height into it, and one and a half face widths to either side. The zone is
// clipped to the frame.
func PersonalZone(face [4]float32, frameW, frameH int) [4]float32 {
	w := face[2] - face[0]
	h := face[3] - face[1]
	return [4]float32{
		clampF(face[0]-1.5*w, 0, float32(frameW)),
		clampF(face[1]-3*h, 0, float32(frameH)),
		clampF(face[2]+1.5*w, 0, float32(frameW)),
		clampF(face[1]+0.5*h, 0, float32(frameH)),
	}
}

// InZone reports whether p lies inside zone, edges included.
func InZone(p [2]float32, zone [4]float32) bool {
	return p[0] >= zone[0] && p[0] <= zone[2] && p[1] >= zone[1] && p[1] <= zone[3]
}

// HandSide returns "right" when the wrist is right of the face centre in
// image coordinates, "left" otherwise.
func HandSide(face [4]float32, wrist [2]float32) string {
	if wrist[0] > (face[0]+face[2])/2 {
		return "right"
	}
	return "left"
}

// OpenPalm reports a raised open hand: at least three fingertips above the
// wrist and fingertips spread more than minSpread pixels horizontally.
func OpenPalm(h Hand, minSpread float32) bool {
	if len(h.Landmarks) < handLandmarks {
		return false
	}
	wrist := h.Landmarks[HandWrist]
	raised := 0
	minX, maxX := h.Landmarks[HandThumbTip][0], h.Landmarks[HandThumbTip][0]
	for _, i := range []int{HandThumbTip, HandIndexTip, HandMiddleTip, HandRingTip, HandPinkyTip} {
		tip := h.Landmarks[i]
		if tip[1] < wrist[1] {
			raised++
		}
		minX = min(minX, tip[0])
		maxX = max(maxX, tip[0])
	}
	return raised >= 3 && maxX-minX > minSpread
}

const handInput = 224

// HandLandmarker runs a single-hand 21-point landmark model over the whole
// frame through ONNX Runtime. Input is 1x3x224x224 RGB in [0, 1]; outputs are
// xyz_x21 (63 values in input pixels) and hand_score.
type HandLandmarker struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	pointsTensor *ort.Tensor[float32]
	scoreTensor  *ort.Tensor[float32]
	minScore     float32
}

var (
	handMean = [3]float32{0, 0, 0}
	handStd  = [3]float32{255, 255, 255}
)

// NewHandLandmarker loads the hand landmark model. ONNX Runtime must already
// be initialised.
func NewHandLandmarker(modelPath string, minScore float32, opts *ort.SessionOptions) (*HandLandmarker, error) {
	h := &HandLandmarker{minScore: minScore}
	var err error
	if h.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, handInput, handInput)); err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	if h.pointsTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, handLandmarks*3)); err != nil {
		h.Close()
		return nil, fmt.Errorf("create landmark tensor: %w", err)
	}
	if h.scoreTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		h.Close()
		return nil, fmt.Errorf("create score tensor: %w", err)
	}

	slog.Info("loading hand landmark model", "path", modelPath)
	h.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"xyz_x21", "hand_score"},
		[]ort.Value{h.inputTensor},
		[]ort.Value{h.pointsTensor, h.scoreTensor},
		opts,
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("create hand session: %w", err)
	}
	return h, nil
}

// DetectHands returns the hand in img, if the model is confident enough.
func (h *HandLandmarker) DetectHands(ctx context.Context, img image.Image) ([]Hand, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	copy(h.inputTensor.GetData(), imageToFloat32CHW(img, handInput, handInput, handMean, handStd))
	if err := h.session.Run(); err != nil {
		return nil, fmt.Errorf("run hand landmarks: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("hands").Observe(time.Since(start).Seconds())

	score := h.scoreTensor.GetData()[0]
	if score < h.minScore {
		return nil, nil
	}
	b := img.Bounds()
	return []Hand{{
		Landmarks: scaleLandmarks(h.pointsTensor.GetData(), float32(b.Dx())/handInput, float32(b.Dy())/handInput),
		Score:     score,
	}}, nil
}

// scaleLandmarks turns xyz triples in model input pixels into frame pixels.
func scaleLandmarks(xyz []float32, sx, sy float32) [][2]float32 {
	pts := make([][2]float32, len(xyz)/3)
	for i := range pts {
		pts[i] = [2]float32{xyz[i*3] * sx, xyz[i*3+1] * sy}
	}
	return pts
}

func (h *HandLandmarker) Close() {
	if h.session != nil {
		h.session.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{h.inputTensor, h.pointsTensor, h.scoreTensor} {
		if t != nil {
			t.Destroy()
		}
	}
}
