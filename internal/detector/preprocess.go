package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// preprocess resizes frame to the image input and converts it from
// interleaved HWC to planar CHW with a batch of one. Pixel values stay in 0-255
// and channel order stays BGR.
func preprocess(frame *gocv.Mat, in TensorInfo) (Tensor, error) {
	c, h, w := int(in.Shape[1]), int(in.Shape[2]), int(in.Shape[3])

	src := *frame
	if c == 1 && frame.Channels() != 1 {
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
		src = gray
	} else if c == 3 && frame.Channels() == 1 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(*frame, &bgr, gocv.ColorGrayToBGR)
		src = bgr
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0, image.Pt(w, h), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return Tensor{}, fmt.Errorf("read blob: %w", err)
	}
	if len(data) != c*h*w {
		return Tensor{}, fmt.Errorf("blob has %d values, want %d", len(data), c*h*w)
	}

	// The blob memory belongs to the Mat, so copy before it is closed.
	out := make([]float32, len(data))
	copy(out, data)

	return Tensor{
		Name:  in.Name,
		Shape: []int64{1, int64(c), int64(h), int64(w)},
		Data:  out,
	}, nil
}
