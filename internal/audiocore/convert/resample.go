package convert

// resampleLinear converts interleaved input from sourceRate to targetRate by
// linear interpolation between the two nearest source frames at each output
// time index. Output length is floor(inputFrames * targetRate / sourceRate)
// frames. Equal rates return the input unchanged.
func resampleLinear(input []float32, channels, sourceRate, targetRate int) []float32 {
	if sourceRate == targetRate || len(input) == 0 {
		return input
	}

	inFrames := len(input) / channels
	outFrames := inFrames * targetRate / sourceRate
	if outFrames == 0 {
		return nil
	}

	output := make([]float32, outFrames*channels)
	ratio := float64(sourceRate) / float64(targetRate)

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		next := idx + 1
		if next >= inFrames {
			next = inFrames - 1
		}

		for ch := 0; ch < channels; ch++ {
			a := input[idx*channels+ch]
			b := input[next*channels+ch]
			output[i*channels+ch] = a + (b-a)*frac
		}
	}

	return output
}
