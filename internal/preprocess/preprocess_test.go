package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/Brownie44l1/tumorscan/internal/model"
)

func metadata(t *testing.T, layout, order string, shape []int64) model.Metadata {
	t.Helper()
	md := model.Metadata{
		InputShape:   shape,
		OutputShape:  []int64{1, 2},
		Classes:      []string{"tumor", "no tumor"},
		Layout:       layout,
		ChannelOrder: order,
	}
	require.NoError(t, md.Normalize())
	return md
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestProcessOutputMatchesInputShape(t *testing.T) {
	src := solid(40, 30, color.RGBA{R: 200, G: 90, B: 10, A: 255})

	encoders := map[string]func(io.Writer, image.Image) error{
		"png":  png.Encode,
		"jpg":  func(w io.Writer, m image.Image) error { return jpeg.Encode(w, m, nil) },
		"gif":  func(w io.Writer, m image.Image) error { return gif.Encode(w, m, nil) },
		"bmp":  bmp.Encode,
		"tiff": func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) },
	}

	layouts := map[string][]int64{
		model.LayoutNHWC: {1, 16, 12, 3},
		model.LayoutNCHW: {1, 3, 16, 12},
	}

	for ext, encode := range encoders {
		for layout, shape := range layouts {
			t.Run(ext+"/"+layout, func(t *testing.T) {
				md := metadata(t, layout, model.ChannelsRGB, shape)
				p := New(md, zap.NewNop())

				var buf bytes.Buffer
				require.NoError(t, encode(&buf, src))

				tensor, err := p.Process(&buf, ext)
				require.NoError(t, err)
				assert.Len(t, tensor, md.InputSize())
				for _, v := range tensor {
					assert.True(t, v >= 0 && v <= 1, "value %v out of range", v)
				}
			})
		}
	}
}

func TestTensorLayouts(t *testing.T) {
	red := solid(8, 8, color.RGBA{R: 255, A: 255})

	t.Run("nhwc rgb interleaves", func(t *testing.T) {
		p := New(metadata(t, model.LayoutNHWC, model.ChannelsRGB, []int64{1, 4, 4, 3}), zap.NewNop())
		tensor := p.Tensor(red)
		assert.InDelta(t, 1.0, tensor[0], 1e-2)
		assert.InDelta(t, 0.0, tensor[1], 1e-2)
		assert.InDelta(t, 0.0, tensor[2], 1e-2)
		assert.InDelta(t, 1.0, tensor[3], 1e-2)
	})

	t.Run("nchw rgb is planar", func(t *testing.T) {
		p := New(metadata(t, model.LayoutNCHW, model.ChannelsRGB, []int64{1, 3, 4, 4}), zap.NewNop())
		tensor := p.Tensor(red)
		assert.InDelta(t, 1.0, tensor[0], 1e-2)
		assert.InDelta(t, 1.0, tensor[15], 1e-2)
		assert.InDelta(t, 0.0, tensor[16], 1e-2)
		assert.InDelta(t, 0.0, tensor[32], 1e-2)
	})

	t.Run("bgr swaps red and blue", func(t *testing.T) {
		p := New(metadata(t, model.LayoutNHWC, model.ChannelsBGR, []int64{1, 4, 4, 3}), zap.NewNop())
		tensor := p.Tensor(red)
		assert.InDelta(t, 0.0, tensor[0], 1e-2)
		assert.InDelta(t, 1.0, tensor[2], 1e-2)
	})
}

func TestTensorNonSquare(t *testing.T) {
	md := metadata(t, model.LayoutNHWC, model.ChannelsRGB, []int64{1, 2, 5, 3})
	p := New(md, zap.NewNop())

	tensor := p.Tensor(solid(100, 100, color.White))
	assert.Len(t, tensor, 2*5*3)
}

func TestDecodeMalformed(t *testing.T) {
	p := New(metadata(t, model.LayoutNHWC, model.ChannelsRGB, []int64{1, 4, 4, 3}), zap.NewNop())

	_, err := p.Decode(bytes.NewReader([]byte("not an image")), "png")
	assert.ErrorIs(t, err, ErrDecode)

	_, err = p.Decode(bytes.NewReader([]byte("not a dicom file")), "dcm")
	assert.ErrorIs(t, err, ErrDecode)
}

func element(t *testing.T, tg tag.Tag, data interface{}) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, data)
	require.NoError(t, err)
	return el
}

// writeDICOM encodes a single-frame grayscale scan where every pixel is value.
func writeDICOM(t *testing.T, w io.Writer, rows, cols, bitsAllocated, bitsStored, value int) {
	t.Helper()

	pixels := make([][]int, rows*cols)
	for i := range pixels {
		pixels[i] = []int{value}
	}

	ds := dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		element(t, tag.MediaStorageSOPInstanceUID, []string{"1.2.3.4.5.6.7"}),
		element(t, tag.TransferSyntaxUID, []string{uid.ImplicitVRLittleEndian}),
		element(t, tag.Rows, []int{rows}),
		element(t, tag.Columns, []int{cols}),
		element(t, tag.BitsAllocated, []int{bitsAllocated}),
		element(t, tag.BitsStored, []int{bitsStored}),
		element(t, tag.NumberOfFrames, []string{"1"}),
		element(t, tag.SamplesPerPixel, []int{1}),
		element(t, tag.PixelData, dicom.PixelDataInfo{
			Frames: []*frame.Frame{{
				NativeData: frame.NativeFrame{
					BitsPerSample: bitsAllocated,
					Rows:          rows,
					Cols:          cols,
					Data:          pixels,
				},
			}},
		}),
	}}
	require.NoError(t, dicom.Write(w, ds))
}

func TestProcessDICOM(t *testing.T) {
	tests := []struct {
		name          string
		bitsAllocated int
		bitsStored    int
		value         int
		want          float32
	}{
		{"8 bit white", 8, 8, 255, 1},
		{"12 bit in 16 white", 16, 12, 4095, 1},
		{"12 bit in 16 mid grey", 16, 12, 2048, 0.5},
		{"black", 16, 16, 0, 0},
	}

	for _, tt := range tests {
		for layout, shape := range map[string][]int64{
			model.LayoutNHWC: {1, 4, 4, 3},
			model.LayoutNCHW: {1, 3, 4, 4},
		} {
			t.Run(tt.name+"/"+layout, func(t *testing.T) {
				md := metadata(t, layout, model.ChannelsRGB, shape)
				p := New(md, zap.NewNop())

				var buf bytes.Buffer
				writeDICOM(t, &buf, 4, 4, tt.bitsAllocated, tt.bitsStored, tt.value)

				tensor, err := p.Process(&buf, "dcm")
				require.NoError(t, err)
				require.Len(t, tensor, md.InputSize())
				for _, v := range tensor {
					assert.InDelta(t, tt.want, v, 1e-2)
				}
			})
		}
	}
}

func TestNativeImageRejectsShortFrame(t *testing.T) {
	_, err := nativeImage(&frame.NativeFrame{Rows: 2, Cols: 2, BitsPerSample: 8, Data: [][]int{{1}}}, 8)
	assert.ErrorIs(t, err, ErrDecode)
}
