package effects

import "math"

// Distortion is tanh waveshaping with a drive stage, a makeup gain, and an
// optional post lowpass to tame the harmonics drive adds.
type Distortion struct {
	drive      float32
	makeup     float32
	lpfAlpha   float32
	lpfL, lpfR float32
}

// NewDistortion builds a distortion stage. drive controls how hard the
// signal is pushed into the tanh curve; lpfCutoffHz <= 0 disables the
// post filter.
func NewDistortion(sampleRate int, drive, makeup, lpfCutoffHz float32) *Distortion {
	d := &Distortion{drive: drive, makeup: makeup}
	if lpfCutoffHz > 0 && lpfCutoffHz < float32(sampleRate)/2 {
		rc := 1.0 / (2.0 * math.Pi * float64(lpfCutoffHz))
		dt := 1.0 / float64(sampleRate)
		d.lpfAlpha = float32(dt / (rc + dt))
	}
	return d
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	l = float32(math.Tanh(float64(l * d.drive)))
	r = float32(math.Tanh(float64(r * d.drive)))
	l *= d.makeup
	r *= d.makeup
	if d.lpfAlpha > 0 {
		d.lpfL += d.lpfAlpha * (l - d.lpfL)
		d.lpfR += d.lpfAlpha * (r - d.lpfR)
		l, r = d.lpfL, d.lpfR
	}
	return l, r
}

func (d *Distortion) Reset() {
	d.lpfL, d.lpfR = 0, 0
}
