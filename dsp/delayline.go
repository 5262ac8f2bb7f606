package dsp

// DelayLine implements a circular buffer for delay
type DelayLine struct {
	buffer   []float64
	writePos int
	size     int
	interp   Interpolation
}

// NewDelayLine creates a new delay line with the given size
func NewDelayLine(size int) *DelayLine {
	if size < 4 {
		size = 4
	}
	return &DelayLine{
		buffer: make([]float64, size),
		size:   size,
		interp: InterpLinear,
	}
}

// Size returns the capacity of the delay line in samples.
func (d *DelayLine) Size() int {
	return d.size
}

// SetInterpolation selects the fractional read method.
func (d *DelayLine) SetInterpolation(kind Interpolation) {
	d.interp = kind
}

// Write writes a sample to the delay line
func (d *DelayLine) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos == d.size {
		d.writePos = 0
	}
}

// Read reads a sample from the delay line at the given delay (in samples).
// A delay of 1 returns the most recently written sample.
func (d *DelayLine) Read(delay int) float64 {
	readPos := (d.writePos - delay) % d.size
	if readPos < 0 {
		readPos += d.size
	}
	return d.buffer[readPos]
}

// ReadFractional reads a fractional delay using the configured interpolation.
func (d *DelayLine) ReadFractional(delay float64) float64 {
	maxDelay := float64(d.size - 2)
	if delay < 1 {
		delay = 1
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	whole := int(delay)
	frac := delay - float64(whole)
	if d.interp == InterpNone || frac == 0 {
		return d.Read(whole)
	}

	// y1 is the sample at the integer delay, y2 one step older.
	y1 := d.Read(whole)
	y0 := y1
	if whole > 1 {
		y0 = d.Read(whole - 1)
	}
	y2 := d.Read(whole + 1)
	y3 := d.Read(whole + 2)
	return Interpolate(d.interp, y0, y1, y2, y3, frac)
}

// Reset clears the delay line
func (d *DelayLine) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}
