package vision

import (
	"context"
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found in one frame.
type Detection struct {
	BBox       [4]float32   // x1, y1, x2, y2 (pixel coordinates)
	Landmarks  [][2]float32 // eyes, nose, mouth corners
	Embedding  []float32
	Confidence float32
	FrameIndex int
	Index      int // position within the frame's detections
}

// Area returns the bbox area.
func (d Detection) Area() float32 {
	return BoxArea(d.BBox)
}

// Detector turns an image into face detections with embeddings.
// Implementations drop detections below their minimum confidence.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Largest returns the index of the detection with the biggest bbox, or -1.
func Largest(dets []Detection) int {
	best := -1
	var bestArea float32
	for i, d := range dets {
		if a := d.Area(); best < 0 || a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}

// det_10g output tensors, no batch dimension. For a 640x640 input:
// 12800 = 80*80*2, 3200 = 40*40*2, 800 = 20*20*2 anchors per stride.
var retinaOutputs = []struct {
	name  string
	width int64
}{
	{"448", 1}, {"471", 1}, {"494", 1}, // scores
	{"451", 4}, {"474", 4}, {"497", 4}, // bboxes
	{"454", 10}, {"477", 10}, {"500", 10}, // landmarks
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// RetinaFace runs RetinaFace det_10g face detection through ONNX Runtime.
type RetinaFace struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

// NewRetinaFace loads the detection model. opts may be nil for ORT defaults.
func NewRetinaFace(modelPath string, threshold float32, inputSize int, opts *ort.SessionOptions) (*RetinaFace, error) {
	if inputSize <= 0 {
		inputSize = 640
	}
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputSize), int64(inputSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	r := &RetinaFace{
		inputTensor: inputTensor,
		threshold:   threshold,
		inputW:      inputSize,
		inputH:      inputSize,
	}

	names := make([]string, len(retinaOutputs))
	values := make([]ort.Value, len(retinaOutputs))
	for i, out := range retinaOutputs {
		stride := strides[i%len(strides)]
		anchors := int64((inputSize / stride) * (inputSize / stride) * anchorsPerStride)
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(anchors, out.width))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create output tensor %s: %w", out.name, err)
		}
		names[i] = out.name
		values[i] = t
		r.outputTensors = append(r.outputTensors, t)
	}

	r.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		names,
		[]ort.Value{inputTensor},
		values,
		opts,
	)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return r, nil
}

// Detect returns faces above the model threshold after NMS, in original image coordinates.
// Embeddings are left empty.
func (r *RetinaFace) Detect(img image.Image) ([]Detection, error) {
	bounds := img.Bounds()
	copy(r.inputTensor.GetData(), imageToFloat32CHW(img, r.inputW, r.inputH, detMean, detStd))

	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	return nms(r.decode(bounds.Dx(), bounds.Dy()), 0.4), nil
}

// decode turns anchor-relative outputs at strides 8, 16, 32 into pixel boxes.
func (r *RetinaFace) decode(origW, origH int) []Detection {
	var dets []Detection

	scaleW := float32(origW) / float32(r.inputW)
	scaleH := float32(origH) / float32(r.inputH)

	for si, stride := range strides {
		scores := r.outputTensors[si].GetData()
		boxes := r.outputTensors[si+3].GetData()
		marks := r.outputTensors[si+6].GetData()
		st := float32(stride)

		idx := 0
		for cy := 0; cy < r.inputH/stride; cy++ {
			for cx := 0; cx < r.inputW/stride; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if scores[idx] < r.threshold {
						idx++
						continue
					}
					ax := float32(cx) * st
					ay := float32(cy) * st

					box := [4]float32{
						clampF((ax-boxes[idx*4+0]*st)*scaleW, 0, float32(origW)),
						clampF((ay-boxes[idx*4+1]*st)*scaleH, 0, float32(origH)),
						clampF((ax+boxes[idx*4+2]*st)*scaleW, 0, float32(origW)),
						clampF((ay+boxes[idx*4+3]*st)*scaleH, 0, float32(origH)),
					}
					lm := make([][2]float32, 5)
					for li := range lm {
						lm[li][0] = (ax + marks[idx*10+li*2]*st) * scaleW
						lm[li][1] = (ay + marks[idx*10+li*2+1]*st) * scaleH
					}
					dets = append(dets, Detection{BBox: box, Confidence: scores[idx], Landmarks: lm})
					idx++
				}
			}
		}
	}
	return dets
}

func (r *RetinaFace) Close() {
	if r.session != nil {
		r.session.Destroy()
	}
	if r.inputTensor != nil {
		r.inputTensor.Destroy()
	}
	for _, t := range r.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms keeps the most confident of any overlapping detections.
func nms(dets []Detection, iouThreshold float32) []Detection {
	sort.Slice(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	var kept []Detection
	for _, d := range dets {
		overlaps := false
		for _, k := range kept {
			if IoU(d.BBox, k.BBox) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}
