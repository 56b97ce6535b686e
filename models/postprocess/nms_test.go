package postprocess

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-faceblur/images"
)

func face(x1, y1, x2, y2 int, score float32) Result {
	return Result{Box: images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score, Class: FaceClass}
}

func TestApplyGreedyNMS(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Result
		config     NMSConfig
		expected   []Result
	}{
		{
			name:       "Empty input",
			candidates: nil,
			config:     NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected:   []Result{},
		},
		{
			name:       "Single candidate above threshold",
			candidates: []Result{face(10, 10, 50, 50, 0.8)},
			config:     NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected:   []Result{face(10, 10, 50, 50, 0.8)},
		},
		{
			name:       "Nothing above threshold",
			candidates: []Result{face(0, 0, 10, 10, 0.2), face(20, 20, 30, 30, 0.1)},
			config:     NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected:   []Result{},
		},
		{
			name:       "Score equal to threshold is rejected",
			candidates: []Result{face(0, 0, 10, 10, 0.35), face(20, 20, 30, 30, 0.36)},
			config:     NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected:   []Result{face(20, 20, 30, 30, 0.36)},
		},
		{
			name:       "Identical boxes keep the higher score",
			candidates: []Result{face(0, 0, 40, 40, 0.6), face(0, 0, 40, 40, 0.9)},
			config:     NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected:   []Result{face(0, 0, 40, 40, 0.9)},
		},
		{
			name:       "Disjoint boxes are both kept",
			candidates: []Result{face(0, 0, 10, 10, 0.4), face(100, 100, 110, 110, 0.5)},
			config:     NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected:   []Result{face(100, 100, 110, 110, 0.5), face(0, 0, 10, 10, 0.4)},
		},
		{
			// IoU(A,B)=70/130, IoU(A,C)=30/170, IoU(B,C)=60/140.
			name: "Greedy keeps a box only the suppressed box overlapped",
			candidates: []Result{
				face(3, 0, 13, 10, 0.8),
				face(7, 0, 17, 10, 0.7),
				face(0, 0, 10, 10, 0.9),
			},
			config:   NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected: []Result{face(0, 0, 10, 10, 0.9), face(7, 0, 17, 10, 0.7)},
		},
		{
			name: "Ties keep input order",
			candidates: []Result{
				face(0, 0, 10, 10, 0.7),
				face(1, 0, 11, 10, 0.7),
				face(50, 50, 60, 60, 0.7),
			},
			config:   NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4},
			expected: []Result{face(0, 0, 10, 10, 0.7), face(50, 50, 60, 60, 0.7)},
		},
		{
			name: "Overlap equal to threshold is not suppressed",
			candidates: []Result{
				face(0, 0, 10, 10, 0.9),
				face(0, 0, 10, 5, 0.8), // IoU = 50/100
			},
			config:   NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.5},
			expected: []Result{face(0, 0, 10, 10, 0.9), face(0, 0, 10, 5, 0.8)},
		},
		{
			name: "Degenerate boxes never suppress",
			candidates: []Result{
				face(0, 0, 0, 0, 0.9),
				face(0, 0, 10, 10, 0.8),
				face(10, 10, 0, 0, 0.7),
			},
			config: NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.0},
			expected: []Result{
				face(0, 0, 0, 0, 0.9),
				face(0, 0, 10, 10, 0.8),
				face(10, 10, 0, 0, 0.7),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyGreedyNMS(tt.candidates, &tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestApplyGreedyNMSClassAware(t *testing.T) {
	person := Result{Box: images.Rect{X1: 0, Y1: 0, X2: 40, Y2: 40}, Score: 0.9, Class: 1, Label: "person"}
	faceBox := Result{Box: images.Rect{X1: 0, Y1: 0, X2: 40, Y2: 40}, Score: 0.8, Class: FaceClass, Label: "face"}

	got, err := ApplyGreedyNMS([]Result{person, faceBox}, &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4})
	require.NoError(t, err)
	assert.Equal(t, []Result{person}, got, "class-agnostic suppression crosses classes")

	got, err = ApplyGreedyNMS([]Result{person, faceBox}, &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4, ClassAware: true})
	require.NoError(t, err)
	assert.Equal(t, []Result{person, faceBox}, got, "class-aware suppression stays within a class")
}

func TestApplyGreedyNMSDoesNotModifyInput(t *testing.T) {
	candidates := []Result{face(0, 0, 10, 10, 0.5), face(0, 0, 10, 10, 0.9), face(40, 40, 50, 50, 0.1)}
	snapshot := append([]Result(nil), candidates...)

	_, err := ApplyGreedyNMS(candidates, &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4})
	require.NoError(t, err)
	assert.Equal(t, snapshot, candidates)
}

func TestApplyGreedyNMSValidation(t *testing.T) {
	nan := float32(math.NaN())

	configs := []*NMSConfig{
		nil,
		{ConfidenceThreshold: -0.1, IoUThreshold: 0.4},
		{ConfidenceThreshold: 1.1, IoUThreshold: 0.4},
		{ConfidenceThreshold: 0.35, IoUThreshold: -0.01},
		{ConfidenceThreshold: 0.35, IoUThreshold: 2},
		{ConfidenceThreshold: nan, IoUThreshold: 0.4},
		{ConfidenceThreshold: 0.35, IoUThreshold: nan},
	}
	for _, c := range configs {
		_, err := ApplyGreedyNMS([]Result{face(0, 0, 10, 10, 0.9)}, c)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "unexpected error %v", err)
	}

	scores := []float32{nan, float32(math.Inf(1)), float32(math.Inf(-1)), 2.5, -0.2}
	for _, score := range scores {
		candidates := []Result{face(0, 0, 10, 10, 0.9), face(20, 20, 30, 30, score)}
		_, err := ApplyGreedyNMS(candidates, &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4})
		require.Error(t, err, "score %v", score)
		assert.True(t, errors.Is(err, ErrInvalidCandidate), "unexpected error %v", err)
	}

	_, err := ApplyGreedyNMS([]Result{face(0, 0, 10, 10, 0), face(20, 20, 30, 30, 1)}, &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4})
	assert.NoError(t, err, "scores of exactly 0 and 1 are valid")

	_, err = ApplyGreedyNMS(nil, &NMSConfig{ConfidenceThreshold: 0, IoUThreshold: 1})
	assert.NoError(t, err, "bounds of the unit interval are valid")
}

// TestApplyGreedyNMSProperties checks ordering, stability and idempotence on random candidate sets.
func TestApplyGreedyNMSProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	config := &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4}

	for round := 0; round < 200; round++ {
		n := rng.Intn(60)
		candidates := make([]Result, n)
		for i := range candidates {
			x, y := rng.Intn(200)-20, rng.Intn(200)-20
			w, h := rng.Intn(60)-5, rng.Intn(60)-5
			candidates[i] = face(x, y, x+w, y+h, float32(rng.Intn(100))/100)
		}

		accepted, err := ApplyGreedyNMS(candidates, config)
		require.NoError(t, err)

		for i, a := range accepted {
			assert.Greater(t, a.Score, config.ConfidenceThreshold)
			if i > 0 {
				assert.GreaterOrEqual(t, accepted[i-1].Score, a.Score, "accepted set must be ordered by score")
			}
		}
		assert.True(t, IsSuppressionStable(accepted, config), "round %d: an accepted box suppresses another", round)

		again, err := ApplyGreedyNMS(accepted, config)
		require.NoError(t, err)
		assert.Equal(t, accepted, again, "round %d: suppression is not idempotent", round)
	}
}

func TestIsSuppressionStable(t *testing.T) {
	config := &NMSConfig{ConfidenceThreshold: 0.35, IoUThreshold: 0.4}

	assert.True(t, IsSuppressionStable(nil, config))
	assert.True(t, IsSuppressionStable([]Result{face(0, 0, 10, 10, 0.9), face(7, 0, 17, 10, 0.7)}, config))
	assert.False(t, IsSuppressionStable([]Result{face(0, 0, 10, 10, 0.9), face(3, 0, 13, 10, 0.8)}, config))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "class_0 0.90 at (0,0)-(10,10)", face(0, 0, 10, 10, 0.9).String())

	r := face(1, 2, 3, 4, 0.5)
	r.Label = "face"
	assert.Equal(t, "face 0.50 at (1,2)-(3,4)", r.String())
}
