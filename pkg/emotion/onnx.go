package emotion

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXConfig holds the local model configuration.
type ONNXConfig struct {
	FaceModel    string  // YuNet face detector
	EmotionModel string  // FER+ expression network
	FaceThresh   float64 // Minimum face score
}

// DefaultONNXConfig returns the bundled model paths.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		FaceModel:    "models/face_detection_yunet.onnx",
		EmotionModel: "models/emotion-ferplus-8.onnx",
		FaceThresh:   0.6,
	}
}

// ferPlusClasses is the output order of the FER+ network.
var ferPlusClasses = [8]Label{Neutral, Happy, Surprise, Sad, Angry, Disgust, Fear, Disgust}

const ferPlusInput = 64

// ONNX classifies the most prominent face with OpenCV's DNN module.
type ONNX struct {
	faces gocv.FaceDetectorYN
	net   gocv.Net
	mu    sync.Mutex // gocv objects are not safe for concurrent use
}

// NewONNX loads both models.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	for _, p := range []string{cfg.FaceModel, cfg.EmotionModel} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", p)
		}
	}

	net := gocv.ReadNetFromONNX(cfg.EmotionModel)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load emotion model from %s", cfg.EmotionModel)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	faces := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModel,
		"",
		image.Pt(320, 320),
		float32(cfg.FaceThresh),
		0.3,
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &ONNX{faces: faces, net: net}, nil
}

// Classify finds the highest-scoring face and runs FER+ on its crop.
func (o *ONNX) Classify(ctx context.Context, jpeg []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return Result{}, fmt.Errorf("decode image: empty")
	}

	box, ok := o.bestFace(img)
	if !ok {
		return Result{}, ErrNoFace
	}

	face := img.Region(box)
	defer face.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(face, &gray, gocv.ColorBGRToGray)

	// FER+ takes raw 0-255 grayscale at 64x64.
	blob := gocv.BlobFromImage(gray, 1.0, image.Pt(ferPlusInput, ferPlusInput), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	o.net.SetInput(blob, "")
	out := o.net.Forward("")
	defer out.Close()

	scores := make([]float64, len(ferPlusClasses))
	for i := range scores {
		scores[i] = float64(out.GetFloatAt(0, i))
	}
	idx, p := argmaxSoftmax(scores)
	return Result{Label: ferPlusClasses[idx], Confidence: p}, nil
}

// bestFace returns the pixel box of the highest-scoring detection,
// clamped to the image.
func (o *ONNX) bestFace(img gocv.Mat) (image.Rectangle, bool) {
	o.faces.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	o.faces.Detect(img, &faces)

	best, bestScore := -1, float32(0)
	for r := 0; r < faces.Rows(); r++ {
		// Columns: x, y, w, h, five landmark pairs, score.
		if s := faces.GetFloatAt(r, 14); s > bestScore {
			best, bestScore = r, s
		}
	}
	if best < 0 {
		return image.Rectangle{}, false
	}

	x := int(faces.GetFloatAt(best, 0))
	y := int(faces.GetFloatAt(best, 1))
	w := int(faces.GetFloatAt(best, 2))
	h := int(faces.GetFloatAt(best, 3))
	box := image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if box.Dx() < 8 || box.Dy() < 8 {
		return image.Rectangle{}, false
	}
	return box, true
}

// Close releases the models.
func (o *ONNX) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.faces.Close()
	return o.net.Close()
}

// argmaxSoftmax returns the index of the largest score and its softmax
// probability.
func argmaxSoftmax(scores []float64) (int, float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - scores[best])
	}
	return best, 1 / sum
}

// Verify ONNX implements Classifier at compile time.
var _ Classifier = (*ONNX)(nil)
