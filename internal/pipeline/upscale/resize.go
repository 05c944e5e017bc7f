package upscale

import (
	"math"

	"github.com/sheetcap/sheetcap/internal/capture"
)

// bicubicResize resamples img to newW x newH using a Catmull-Rom bicubic
// kernel, the same style of interpolation the OpenCV/FFmpeg backends this
// engine fronts use for their own non-HAT resize paths.
func bicubicResize(img capture.RGBImage, newW, newH int) capture.RGBImage {
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	out := capture.RGBImage{Width: newW, Height: newH, Pix: make([]byte, newW*newH*3)}

	scaleX := float64(img.Width) / float64(newW)
	scaleY := float64(img.Height) / float64(newH)

	for y := 0; y < newH; y++ {
		srcY := (float64(y)+0.5)*scaleY - 0.5
		for x := 0; x < newW; x++ {
			srcX := (float64(x)+0.5)*scaleX - 0.5
			r, g, b := cubicSample(img, srcX, srcY)
			i := (y*newW + x) * 3
			out.Pix[i] = r
			out.Pix[i+1] = g
			out.Pix[i+2] = b
		}
	}
	return out
}

func cubicSample(img capture.RGBImage, x, y float64) (byte, byte, byte) {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	var rSum, gSum, bSum, wSum float64
	for m := -1; m <= 2; m++ {
		wy := catmullRom(fy - float64(m))
		py := clampInt(y0+m, 0, img.Height-1)
		for n := -1; n <= 2; n++ {
			wx := catmullRom(fx - float64(n))
			px := clampInt(x0+n, 0, img.Width-1)
			weight := wx * wy
			i := (py*img.Width + px) * 3
			rSum += weight * float64(img.Pix[i])
			gSum += weight * float64(img.Pix[i+1])
			bSum += weight * float64(img.Pix[i+2])
			wSum += weight
		}
	}
	if wSum == 0 {
		wSum = 1
	}
	return clampByte(rSum / wSum), clampByte(gSum / wSum), clampByte(bSum / wSum)
}

func catmullRom(t float64) float64 {
	t = math.Abs(t)
	const a = -0.5
	if t <= 1 {
		return (a+2)*t*t*t - (a+3)*t*t + 1
	}
	if t < 2 {
		return a*t*t*t - 5*a*t*t + 8*a*t - 4*a
	}
	return 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// unsharpMask sharpens img with a Gaussian-blur-based unsharp mask:
// output = original + amount * (original - blurred), radius controlling
// the blur kernel size.
func unsharpMask(img capture.RGBImage, radius, amount float64) capture.RGBImage {
	blurred := gaussianBlur(img, radius)
	out := capture.RGBImage{Width: img.Width, Height: img.Height, Pix: make([]byte, len(img.Pix))}

	for i := range img.Pix {
		orig := float64(img.Pix[i])
		blur := float64(blurred.Pix[i])
		out.Pix[i] = clampByte(orig + amount*(orig-blur))
	}
	return out
}

func gaussianBlur(img capture.RGBImage, radius float64) capture.RGBImage {
	kernel := gaussianKernel(radius)
	horiz := convolveHorizontal(img, kernel)
	return convolveVertical(horiz, kernel)
}

func gaussianKernel(radius float64) []float64 {
	size := int(math.Ceil(radius*3))*2 + 1
	kernel := make([]float64, size)
	sigma := radius
	if sigma <= 0 {
		sigma = 0.01
	}
	sum := 0.0
	half := size / 2
	for i := 0; i < size; i++ {
		x := float64(i - half)
		v := math.Exp(-(x * x) / (2 * sigma * sigma))
		kernel[i] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func convolveHorizontal(img capture.RGBImage, kernel []float64) capture.RGBImage {
	half := len(kernel) / 2
	out := capture.RGBImage{Width: img.Width, Height: img.Height, Pix: make([]byte, len(img.Pix))}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			var r, g, b float64
			for k, w := range kernel {
				sx := clampInt(x+k-half, 0, img.Width-1)
				i := (y*img.Width + sx) * 3
				r += w * float64(img.Pix[i])
				g += w * float64(img.Pix[i+1])
				b += w * float64(img.Pix[i+2])
			}
			i := (y*img.Width + x) * 3
			out.Pix[i] = clampByte(r)
			out.Pix[i+1] = clampByte(g)
			out.Pix[i+2] = clampByte(b)
		}
	}
	return out
}

func convolveVertical(img capture.RGBImage, kernel []float64) capture.RGBImage {
	half := len(kernel) / 2
	out := capture.RGBImage{Width: img.Width, Height: img.Height, Pix: make([]byte, len(img.Pix))}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			var r, g, b float64
			for k, w := range kernel {
				sy := clampInt(y+k-half, 0, img.Height-1)
				i := (sy*img.Width + x) * 3
				r += w * float64(img.Pix[i])
				g += w * float64(img.Pix[i+1])
				b += w * float64(img.Pix[i+2])
			}
			i := (y*img.Width + x) * 3
			out.Pix[i] = clampByte(r)
			out.Pix[i+1] = clampByte(g)
			out.Pix[i+2] = clampByte(b)
		}
	}
	return out
}
