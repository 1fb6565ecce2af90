package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/nfnt/resize"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/Brownie44l1/tumorscan/internal/model"
)

var ErrDecode = errors.New("failed to decode image")

// Preprocessor turns an image into the input tensor of a specific model.
type Preprocessor struct {
	height       int
	width        int
	layout       string
	channelOrder string
	log          *zap.Logger
}

func New(md model.Metadata, log *zap.Logger) *Preprocessor {
	height, width := md.ImageDims()
	return &Preprocessor{
		height:       height,
		width:        width,
		layout:       md.Layout,
		channelOrder: md.ChannelOrder,
		log:          log,
	}
}

// Decode reads an image. ext selects the DICOM parser for "dcm"; every other
// format is detected from the data.
func (p *Preprocessor) Decode(r io.Reader, ext string) (image.Image, error) {
	if strings.EqualFold(strings.TrimPrefix(ext, "."), "dcm") {
		return decodeDICOM(r)
	}

	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	p.log.Debug("Decoded image",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	return img, nil
}

// decodeDICOM returns the first frame of the pixel data.
func decodeDICOM(r io.Reader) (image.Image, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	dataset, err := dicom.Parse(bytes.NewReader(raw), int64(len(raw)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dicom: %v", ErrDecode, err)
	}

	pixelData, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%w: dicom: %v", ErrDecode, err)
	}
	if pixelData.Value.ValueType() != dicom.PixelData {
		return nil, fmt.Errorf("%w: dicom pixel data is not readable", ErrDecode)
	}

	info := dicom.MustGetPixelDataInfo(pixelData.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("%w: dicom file has no frames", ErrDecode)
	}

	first := info.Frames[0]
	if first.Encapsulated {
		img, err := first.GetImage()
		if err != nil {
			return nil, fmt.Errorf("%w: dicom frame: %v", ErrDecode, err)
		}
		return img, nil
	}

	native, err := first.GetNativeFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: dicom frame: %v", ErrDecode, err)
	}
	return nativeImage(native, bitsStored(&dataset, native.BitsPerSample))
}

// bitsStored is the significant bit depth of each sample. A 12-bit scan is
// usually allocated 16 bits per sample.
func bitsStored(dataset *dicom.Dataset, allocated int) int {
	el, err := dataset.FindElementByTag(tag.BitsStored)
	if err != nil || el.Value.ValueType() != dicom.Ints {
		return allocated
	}
	if v := dicom.MustGetInts(el.Value); len(v) > 0 && v[0] > 0 && v[0] < allocated {
		return v[0]
	}
	return allocated
}

// nativeImage scales raw samples of the given bit depth to the full 16-bit
// range. Frames with three or more samples per pixel are read as RGB.
func nativeImage(f *frame.NativeFrame, bits int) (image.Image, error) {
	if f.Rows <= 0 || f.Cols <= 0 || len(f.Data) < f.Rows*f.Cols {
		return nil, fmt.Errorf("%w: dicom frame is %dx%d with %d pixels", ErrDecode, f.Cols, f.Rows, len(f.Data))
	}
	if bits <= 0 || bits > 32 {
		return nil, fmt.Errorf("%w: dicom frame has %d bits per sample", ErrDecode, bits)
	}

	maxValue := float64(uint64(1)<<uint(bits) - 1)
	scale := func(v int) uint16 {
		switch {
		case v <= 0:
			return 0
		case float64(v) >= maxValue:
			return 0xffff
		}
		return uint16(float64(v) * 0xffff / maxValue)
	}

	bounds := image.Rect(0, 0, f.Cols, f.Rows)
	if len(f.Data[0]) >= 3 {
		img := image.NewRGBA64(bounds)
		for i := 0; i < f.Rows*f.Cols; i++ {
			px := f.Data[i]
			if len(px) < 3 {
				return nil, fmt.Errorf("%w: dicom pixel %d has %d samples", ErrDecode, i, len(px))
			}
			img.SetRGBA64(i%f.Cols, i/f.Cols, color.RGBA64{R: scale(px[0]), G: scale(px[1]), B: scale(px[2]), A: 0xffff})
		}
		return img, nil
	}

	img := image.NewGray16(bounds)
	for i := 0; i < f.Rows*f.Cols; i++ {
		if len(f.Data[i]) == 0 {
			return nil, fmt.Errorf("%w: dicom pixel %d has no samples", ErrDecode, i)
		}
		img.SetGray16(i%f.Cols, i/f.Cols, color.Gray16{Y: scale(f.Data[i][0])})
	}
	return img, nil
}

// Tensor resizes img to the model input and returns the normalized values,
// each in [0,1], in the model's layout and channel order.
func (p *Preprocessor) Tensor(img image.Image) []float32 {
	resized := resize.Resize(uint(p.width), uint(p.height), img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height

	inputData := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			c0, c1, c2 := float32(r)/65535.0, float32(g)/65535.0, float32(b)/65535.0
			if p.channelOrder == model.ChannelsBGR {
				c0, c2 = c2, c0
			}

			pixelIndex := y*width + x
			if p.layout == model.LayoutNCHW {
				inputData[pixelIndex] = c0
				inputData[plane+pixelIndex] = c1
				inputData[2*plane+pixelIndex] = c2
			} else {
				inputData[3*pixelIndex] = c0
				inputData[3*pixelIndex+1] = c1
				inputData[3*pixelIndex+2] = c2
			}
		}
	}

	return inputData
}

// Process decodes and converts in one step.
func (p *Preprocessor) Process(r io.Reader, ext string) ([]float32, error) {
	img, err := p.Decode(r, ext)
	if err != nil {
		return nil, err
	}
	return p.Tensor(img), nil
}
