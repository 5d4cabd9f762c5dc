package analytics

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

type kmeansConfig struct {
	K       int
	NInit   int
	MaxIter int
	Tol     float64
	Seed    uint64
}

type kmeansResult struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
	Iters     int
}

// kmeans partitions points into cfg.K clusters with Lloyd iterations from k-means++
// seeds, restarting cfg.NInit times and keeping the lowest inertia. The same seed and
// input always produce the same partition.
func kmeans(points [][]float64, cfg kmeansConfig) kmeansResult {
	rng := rand.New(rand.NewSource(cfg.Seed))
	best := kmeansResult{Inertia: math.Inf(1)}
	for run := 0; run < cfg.NInit; run++ {
		res := lloyd(points, seedPlusPlus(points, cfg.K, rng), cfg)
		if res.Inertia < best.Inertia {
			best = res
		}
	}
	return best
}

// seedPlusPlus picks initial centroids with probability proportional to squared
// distance from the nearest centroid already chosen.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.Intn(len(points))]))
	d2 := make([]float64, len(points))
	for i, p := range points {
		d2[i] = sqDist(p, centroids[0])
	}
	for len(centroids) < k {
		idx, ok := sampleuv.NewWeighted(d2, rng).Take()
		if !ok {
			// every point coincides with a centroid
			idx = rng.Intn(len(points))
		}
		c := clone(points[idx])
		centroids = append(centroids, c)
		for i, p := range points {
			d2[i] = math.Min(d2[i], sqDist(p, c))
		}
	}
	return centroids
}

func lloyd(points [][]float64, centroids [][]float64, cfg kmeansConfig) kmeansResult {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	iters := 0
	for iters < cfg.MaxIter {
		iters++
		if assign(points, centroids, labels) == 0 {
			break
		}
		if shift := update(points, labels, centroids); shift <= cfg.Tol {
			assign(points, centroids, labels)
			break
		}
	}
	assign(points, centroids, labels)
	inertia := 0.0
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}
	return kmeansResult{Labels: labels, Centroids: centroids, Inertia: inertia, Iters: iters}
}

// assign moves every point to its nearest centroid and returns how many moved.
func assign(points, centroids [][]float64, labels []int) int {
	moved := 0
	for i, p := range points {
		bestJ, bestD := 0, math.Inf(1)
		for j, c := range centroids {
			if d := sqDist(p, c); d < bestD {
				bestJ, bestD = j, d
			}
		}
		if labels[i] != bestJ {
			labels[i] = bestJ
			moved++
		}
	}
	return moved
}

// update recomputes centroids as cluster means and returns the total squared shift.
// An empty cluster is re-seeded with the point farthest from its own centroid.
func update(points [][]float64, labels []int, centroids [][]float64) float64 {
	dim := len(points[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	for i, p := range points {
		floats.Add(sums[labels[i]], p)
		counts[labels[i]]++
	}
	shift := 0.0
	for j := range centroids {
		if counts[j] == 0 {
			far := farthest(points, labels, centroids)
			shift += sqDist(centroids[j], points[far])
			centroids[j] = clone(points[far])
			continue
		}
		floats.Scale(1/float64(counts[j]), sums[j])
		shift += sqDist(centroids[j], sums[j])
		centroids[j] = sums[j]
	}
	return shift
}

func farthest(points [][]float64, labels []int, centroids [][]float64) int {
	idx, maxD := 0, -1.0
	for i, p := range points {
		if d := sqDist(p, centroids[labels[i]]); d > maxD {
			idx, maxD = i, d
		}
	}
	return idx
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(p []float64) []float64 { return append([]float64(nil), p...) }
