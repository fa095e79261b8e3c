package vad

// Confirm is the accurate detector. It looks at a context window of
// several frames and reports speech only when enough 20ms sub-frames are
// voiced according to the inner detector and loud enough to clear the
// energy floor. Requiring both suppresses the clicks and fan noise that
// fool a single-frame check.
type Confirm struct {
	inner Detector
	floor float64
	ratio float64
}

func NewConfirm(inner Detector, floor, ratio float64) *Confirm {
	return &Confirm{inner: inner, floor: floor, ratio: ratio}
}

func (c *Confirm) IsSpeech(window []int16) (bool, error) {
	total := len(window) / subFrameSamples
	if total == 0 {
		return false, nil
	}
	voiced := 0
	for i := range total {
		sub := window[i*subFrameSamples : (i+1)*subFrameSamples]
		if RMS(sub) < c.floor {
			continue
		}
		ok, err := c.inner.IsSpeech(sub)
		if err != nil {
			return false, err
		}
		if ok {
			voiced++
		}
	}
	return float64(voiced)/float64(total) >= c.ratio, nil
}
