package asof

import "testing"

func TestNearest(t *testing.T) {
	cases := []struct {
		name string
		prim []float64
		sec  []float64
		tol  float64
		want []int
	}{
		{
			name: "within tolerance",
			prim: []float64{102.0},
			sec:  []float64{101.8},
			tol:  5,
			want: []int{0},
		},
		{
			name: "outside tolerance",
			prim: []float64{102.0},
			sec:  []float64{90.0},
			tol:  5,
			want: []int{-1},
		},
		{
			name: "picks closer of two",
			prim: []float64{100, 200},
			sec:  []float64{98, 103, 199},
			tol:  5,
			want: []int{0, 2},
		},
		{
			name: "empty secondary",
			prim: []float64{1, 2, 3},
			sec:  nil,
			tol:  5,
			want: []int{-1, -1, -1},
		},
		{
			name: "dense secondary shares one target",
			prim: []float64{100},
			sec:  []float64{91, 99, 101},
			tol:  10,
			want: []int{2}, // equidistant neighbours resolve to the later sample
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Nearest(c.prim, c.sec, c.tol)
			if len(got) != len(c.want) {
				t.Fatalf("len = %d, want %d", len(got), len(c.want))
			}
			for i := range got {
				if got[i] != c.want[i] {
					t.Errorf("index %d: got %d, want %d", i, got[i], c.want[i])
				}
			}
		})
	}
}
