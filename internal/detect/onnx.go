package detect

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/technosupport/ppe-guard/internal/tracker"
)

const (
	modelInputSize = 640
	defaultNMSIoU  = 0.45
)

// Detector runs a YOLO-style object detector over a decoded frame,
// returning raw boxes before tracking assignment. Always builds
// against a real onnxruntime_go session for a server-class container
// where CGO is available.
type Detector struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	classNames []string
	confidence float64
}

// NewDetector loads the ONNX model at modelPath and allocates the
// fixed-shape input/output tensors an Ultralytics-exported YOLO graph
// uses (1x3x640x640 input, 1x(4+numClasses)xN output).
func NewDetector(modelPath string, classNames []string, confidenceThreshold float64) (*Detector, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("detect: onnxruntime init: %w", err)
		}
	}

	inputShape := ort.NewShape(1, 3, modelInputSize, modelInputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("detect: alloc input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(4+len(classNames)), 8400)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("detect: alloc output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("detect: create session: %w", err)
	}

	return &Detector{
		session:    session,
		input:      input,
		output:     output,
		classNames: classNames,
		confidence: confidenceThreshold,
	}, nil
}

func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	if d.output != nil {
		d.output.Destroy()
	}
}

// DetectJPEG decodes jpegData then runs DetectImage.
func (d *Detector) DetectJPEG(jpegData []byte) (image.Image, []tracker.Detection, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, nil, fmt.Errorf("detect: jpeg decode: %w", err)
	}
	dets, err := d.DetectImage(img)
	return img, dets, err
}

// DetectImage runs inference over an already-decoded frame and
// returns post-filtered, NMS-suppressed detections scaled back to the
// original frame's pixel space. Post-filtering only (no class list
// passed into the tracker) is the deliberate choice for this system:
// the tracker always sees every raw detection, and class eligibility
// is decided afterward against the active-violation cache.
func (d *Detector) DetectImage(img image.Image) ([]tracker.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	letterbox(img, d.input.GetData(), modelInputSize)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("detect: inference: %w", err)
	}

	raw := decodeYOLOOutput(d.output.GetData(), d.classNames, d.confidence)
	// Undo letterbox: remove the padding offset, then the uniform scale.
	b := img.Bounds()
	scale := float64(modelInputSize) / float64(b.Dx())
	if sh := float64(modelInputSize) / float64(b.Dy()); sh < scale {
		scale = sh
	}
	offX := float64((modelInputSize - int(float64(b.Dx())*scale)) / 2)
	offY := float64((modelInputSize - int(float64(b.Dy())*scale)) / 2)
	for i := range raw {
		raw[i].Box.X1 = (raw[i].Box.X1 - offX) / scale
		raw[i].Box.Y1 = (raw[i].Box.Y1 - offY) / scale
		raw[i].Box.X2 = (raw[i].Box.X2 - offX) / scale
		raw[i].Box.Y2 = (raw[i].Box.Y2 - offY) / scale
	}

	return nonMaxSuppress(raw, defaultNMSIoU), nil
}

func (d *Detector) ClassNames() []string { return d.classNames }

// letterbox resizes img into a modelInputSize x modelInputSize
// CHW float32 buffer, padding the short axis with neutral gray rather
// than distorting aspect ratio — the standard YOLO preprocessing step.
func letterbox(img image.Image, dst []float32, size int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := float64(size) / float64(w)
	if sh := float64(size) / float64(h); sh < scale {
		scale = sh
	}
	ow, oh := int(float64(w)*scale), int(float64(h)*scale)
	offX, offY := (size-ow)/2, (size-oh)/2

	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			idx := y*size + x
			dst[idx] = 0.5
			dst[plane+idx] = 0.5
			dst[2*plane+idx] = 0.5
		}
	}

	for y := 0; y < oh; y++ {
		sy := b.Min.Y + int(float64(y)/scale)
		for x := 0; x < ow; x++ {
			sx := b.Min.X + int(float64(x)/scale)
			r, g, bl, _ := img.At(sx, sy).RGBA()
			idx := (y+offY)*size + (x + offX)
			dst[idx] = float32(r) / 65535.0
			dst[plane+idx] = float32(g) / 65535.0
			dst[2*plane+idx] = float32(bl) / 65535.0
		}
	}
}

// decodeYOLOOutput parses the Ultralytics-style [4+numClasses, N]
// output layout (cx,cy,w,h followed by per-class scores) into boxes
// in model-input pixel space, above confidenceThreshold.
func decodeYOLOOutput(raw []float32, classNames []string, confidenceThreshold float64) []tracker.Detection {
	numClasses := len(classNames)
	if numClasses <= 0 {
		return nil
	}
	n := len(raw) / (4 + numClasses)
	var out []tracker.Detection
	for i := 0; i < n; i++ {
		cx := float64(raw[0*n+i])
		cy := float64(raw[1*n+i])
		w := float64(raw[2*n+i])
		h := float64(raw[3*n+i])

		bestClass, bestScore := -1, 0.0
		for c := 0; c < numClasses; c++ {
			score := float64(raw[(4+c)*n+i])
			if score > bestScore {
				bestScore, bestClass = score, c
			}
		}
		if bestClass < 0 || bestScore < confidenceThreshold {
			continue
		}
		out = append(out, tracker.Detection{
			Box: tracker.Box{
				X1: cx - w/2, Y1: cy - h/2,
				X2: cx + w/2, Y2: cy + h/2,
			},
			Confidence: bestScore,
			ClassName:  classNames[bestClass],
		})
	}
	return out
}

func nonMaxSuppress(dets []tracker.Detection, iouThresh float64) []tracker.Detection {
	kept := make([]tracker.Detection, 0, len(dets))
	used := make([]bool, len(dets))
	for i := range dets {
		if used[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if used[j] || dets[j].ClassName != dets[i].ClassName {
				continue
			}
			if boxIOU(dets[i].Box, dets[j].Box) > iouThresh {
				used[j] = true
			}
		}
	}
	return kept
}

func boxIOU(a, b tracker.Box) float64 {
	ix1, iy1 := maxf(a.X1, b.X1), maxf(a.Y1, b.Y1)
	ix2, iy2 := minf(a.X2, b.X2), minf(a.Y2, b.Y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	areaA := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	areaB := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
