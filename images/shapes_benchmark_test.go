package images

import (
	"math/rand"
	"testing"
)

func BenchmarkIoU_NonOverlapping(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 200, Y1: 200, X2: 300, Y2: 300}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoU_PartialOverlap is the common case for duplicate face boxes.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

func BenchmarkIoU_Random(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	rects := make([]Rect, 1024)
	for i := range rects {
		x, y := rng.Intn(1920), rng.Intn(1080)
		rects[i] = Rect{X1: x, Y1: y, X2: x + 20 + rng.Intn(200), Y2: y + 20 + rng.Intn(200)}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rects[i%len(rects)], rects[(i+1)%len(rects)])
	}
}
