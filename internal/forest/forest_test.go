package forest

import "testing"

func TestPredictTraversesToLeaf(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{FeatureIndex: 0, Threshold: 100, Left: 1, Right: 2},
		{Left: -1, Right: -1, Probabilities: []float64{0.9, 0.1}},
		{Left: -1, Right: -1, Probabilities: []float64{0.2, 0.8}},
	}}
	f := Forest{Trees: []Tree{tree}, FeatureWidth: 1}

	small := f.Predict([]int64{10})
	if ArgMax(small) != 0 {
		t.Errorf("small input: argmax = %d, want 0", ArgMax(small))
	}

	big := f.Predict([]int64{1000})
	if ArgMax(big) != 1 {
		t.Errorf("big input: argmax = %d, want 1", ArgMax(big))
	}
}

func TestPredictAveragesAcrossTrees(t *testing.T) {
	a := Tree{Nodes: []Node{{Left: -1, Right: -1, Probabilities: []float64{1, 0}}}}
	b := Tree{Nodes: []Node{{Left: -1, Right: -1, Probabilities: []float64{0, 1}}}}
	f := Forest{Trees: []Tree{a, b}, FeatureWidth: 1}

	out := f.Predict([]int64{0})
	if out[0] != 0.5 || out[1] != 0.5 {
		t.Errorf("Predict = %v, want [0.5 0.5]", out)
	}
}

func TestPredictPadsShortFeatureVector(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{FeatureIndex: 3, Threshold: 0, Left: 1, Right: 2},
		{Left: -1, Right: -1, Probabilities: []float64{1, 0}},
		{Left: -1, Right: -1, Probabilities: []float64{0, 1}},
	}}
	f := Forest{Trees: []Tree{tree}, FeatureWidth: 4}

	// features shorter than FeatureWidth pad with zero, so feature index 3
	// reads as 0, which is <= threshold 0 and takes the left branch.
	out := f.Predict([]int64{5})
	if ArgMax(out) != 0 {
		t.Errorf("ArgMax = %d, want 0", ArgMax(out))
	}
}

func TestRankedIndicesDescending(t *testing.T) {
	probs := []float64{0.2, 0.7, 0.1}
	ranked := RankedIndices(probs)
	want := []int{1, 0, 2}
	for i := range want {
		if ranked[i] != want[i] {
			t.Fatalf("RankedIndices = %v, want %v", ranked, want)
		}
	}
}

func TestArgMaxEmpty(t *testing.T) {
	if got := ArgMax(nil); got != -1 {
		t.Errorf("ArgMax(nil) = %d, want -1", got)
	}
}
