package vision

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
)

// ArcFace extracts 512-d face embeddings with the w600k_r50 model.
type ArcFace struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	dim          int
}

const (
	arcFaceInput = 112
	arcFaceDim   = 512
)

func NewArcFace(modelPath string, opts *ort.SessionOptions) (*ArcFace, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, arcFaceInput, arcFaceInput))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, arcFaceDim))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &ArcFace{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		dim:          arcFaceDim,
	}, nil
}

// Embed returns the unit-length embedding of a face crop.
func (a *ArcFace) Embed(face image.Image) ([]float32, error) {
	copy(a.inputTensor.GetData(), imageToFloat32CHW(face, arcFaceInput, arcFaceInput, embMean, embStd))

	if err := a.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, a.dim)
	copy(embedding, a.outputTensor.GetData())
	return Normalize(embedding), nil
}

// Dim returns the embedding length.
func (a *ArcFace) Dim() int {
	return a.dim
}

func (a *ArcFace) Close() {
	if a.session != nil {
		a.session.Destroy()
	}
	if a.inputTensor != nil {
		a.inputTensor.Destroy()
	}
	if a.outputTensor != nil {
		a.outputTensor.Destroy()
	}
}
