package decode

// Plan describes how a source image is reduced to fit a minimum viewport dimension.
type Plan struct {
	ScaleFactor  float64
	TargetWidth  int
	TargetHeight int
	SampleSize   int
}

// PlanSampling computes the power-of-two sample size for a (width x height)
// source shown in a viewport whose smaller side is minDim. A non-positive
// minDim or an empty source yields a sample size of 1.
func PlanSampling(minDim, width, height int) Plan {
	if minDim <= 0 || width <= 0 || height <= 0 {
		return Plan{ScaleFactor: 1, TargetWidth: width, TargetHeight: height, SampleSize: 1}
	}

	d := float64(minDim)
	scale := max(float64(width)/d, float64(height)/d)
	targetW := int(float64(width) / scale)
	targetH := int(float64(height) / scale)

	s := 1
	for width/s > targetW || height/s > targetH {
		s *= 2
	}
	return Plan{ScaleFactor: scale, TargetWidth: targetW, TargetHeight: targetH, SampleSize: s}
}

func SampleSize(minDim, width, height int) int {
	return PlanSampling(minDim, width, height).SampleSize
}
