package analysis

import "math"

// Band is a frequency range in Hz.
type Band struct {
	Name string
	LoHz float64
	HiHz float64
}

// Window is a time range in seconds.
type Window struct {
	Name  string
	Start float64
	End   float64
}

// DefaultBands split the audible range into seven octave-ish bands.
var DefaultBands = []Band{
	{"sub-bass", 20, 100},
	{"bass", 100, 300},
	{"low-mid", 300, 1000},
	{"mid", 1000, 3000},
	{"hi-mid", 3000, 6000},
	{"high", 6000, 12000},
	{"air", 12000, 20000},
}

// DefaultWindows follow a note from attack to late decay.
var DefaultWindows = []Window{
	{"attack", 0, 0.02},
	{"early", 0.02, 0.1},
	{"body", 0.1, 0.5},
	{"decay", 0.5, 2},
	{"late", 2, 4},
}

// BandDiff compares one band in one window. Levels are mean power in dB.
type BandDiff struct {
	Window string
	Band   string
	RefDB  float64
	CandDB float64
	RMSEDB float64 // per-bin level error
}

// DiffDB is CandDB - RefDB.
func (d BandDiff) DiffDB() float64 { return d.CandDB - d.RefDB }

// BandReport compares the averaged spectra of ref and cand per window and
// band. Windows that start past the shorter signal are skipped, as are
// bands above Nyquist.
func BandReport(ref, cand []float64, sampleRate int, windows []Window, bands []Band) ([]BandDiff, error) {
	n := min(len(ref), len(cand))
	binHz := float64(sampleRate) / CompareFFTSize
	var out []BandDiff
	for _, w := range windows {
		start := int(w.Start * float64(sampleRate))
		end := min(int(w.End*float64(sampleRate)), n)
		if start >= end {
			continue
		}
		sr, err := AverageSpectrum(ref[start:end], CompareFFTSize)
		if err != nil {
			return nil, err
		}
		sc, err := AverageSpectrum(cand[start:end], CompareFFTSize)
		if err != nil {
			return nil, err
		}
		for _, b := range bands {
			lo := max(1, int(b.LoHz/binHz))
			hi := min(len(sr)-2, int(b.HiHz/binHz))
			if lo > hi {
				continue
			}
			var sq, pr, pc float64
			for k := lo; k <= hi; k++ {
				d := MagToDB(sr[k]) - MagToDB(sc[k])
				sq += d * d
				pr += sr[k] * sr[k]
				pc += sc[k] * sc[k]
			}
			cnt := float64(hi - lo + 1)
			out = append(out, BandDiff{
				Window: w.Name,
				Band:   b.Name,
				RefDB:  powerDB(pr / cnt),
				CandDB: powerDB(pc / cnt),
				RMSEDB: math.Sqrt(sq / cnt),
			})
		}
	}
	return out, nil
}

func powerDB(p float64) float64 {
	return max(10*math.Log10(math.Max(p, 1e-24)), FloorDB)
}
