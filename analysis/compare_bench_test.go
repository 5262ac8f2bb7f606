package analysis

import "testing"

func BenchmarkCompare(b *testing.B) {
	const sr = 48000
	ref := makeDecaySine(sr, 261.63, 2, 0.8)
	cand := makeDecaySine(sr, 262.5, 2, 0.7)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Compare(ref, cand, sr)
	}
}

func BenchmarkEstimateLag(b *testing.B) {
	ref := randomSignal(48000, 3)
	cand := randomSignal(48000, 4)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = estimateLag(ref, cand, 24000)
	}
}
