package trainer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/exp/constraints"
)

// Params 随机森林超参数（与 sklearn RandomForestClassifier 同名）
type Params struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"` // 0 表示不限深度
	MinSamplesSplit int   `json:"min_samples_split"`
	RandomState     int64 `json:"random_state"`
}

// 上限：超参数可能来自 HTTP 请求，过大的森林会直接耗尽内存
const (
	MaxEstimators = 10000
	MaxTreeDepth  = 1000
)

func (p Params) Validate() error {
	if p.NEstimators < 1 || p.NEstimators > MaxEstimators {
		return fmt.Errorf("n_estimators must be in [1, %d], got %d", MaxEstimators, p.NEstimators)
	}
	if p.MaxDepth < 0 || p.MaxDepth > MaxTreeDepth {
		return fmt.Errorf("max_depth must be in [1, %d], got %d", MaxTreeDepth, p.MaxDepth)
	}
	if p.MinSamplesSplit < 2 {
		return fmt.Errorf("min_samples_split must be >= 2, got %d", p.MinSamplesSplit)
	}
	return nil
}

// Node 扁平化存储的树节点，Leaf 节点只使用 Probs
type Node struct {
	Leaf      bool      `json:"leaf"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
	Probs     []float64 `json:"probs,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) proba(x []float64) []float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Probs
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest 训练好的随机森林，可直接 JSON 序列化作为模型产物
type Forest struct {
	Params     Params `json:"params"`
	NumClasses int    `json:"num_classes"`
	Trees      []Tree `json:"trees"`
}

// Fit 训练随机森林：每棵树使用 bootstrap 样本，每次分裂随机选 sqrt(d) 个特征
func Fit(ctx context.Context, p Params, x [][]float64, y []int, numClasses int) (*Forest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("training set is empty or mismatched (%d rows, %d labels)", len(x), len(y))
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}

	rng := rand.New(rand.NewSource(p.RandomState))
	nFeatures := len(x[0])
	b := &builder{
		x:          x,
		y:          y,
		numClasses: numClasses,
		maxDepth:   p.MaxDepth,
		minSplit:   p.MinSamplesSplit,
		maxFeat:    clamp(int(math.Sqrt(float64(nFeatures))), 1, nFeatures),
		rng:        rng,
	}

	f := &Forest{Params: p, NumClasses: numClasses, Trees: make([]Tree, 0, p.NEstimators)}
	for t := 0; t < p.NEstimators; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.Intn(len(x))
		}
		var tree Tree
		b.grow(&tree, sample, 1)
		f.Trees = append(f.Trees, tree)
	}
	return f, nil
}

// PredictProba 各树叶子概率的平均
func (f *Forest) PredictProba(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		probs := make([]float64, f.NumClasses)
		for t := range f.Trees {
			for c, v := range f.Trees[t].proba(row) {
				probs[c] += v
			}
		}
		for c := range probs {
			probs[c] /= float64(len(f.Trees))
		}
		out[i] = probs
	}
	return out
}

func (f *Forest) Predict(x [][]float64) []int {
	proba := f.PredictProba(x)
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = argmax(p)
	}
	return out
}

type builder struct {
	x          [][]float64
	y          []int
	numClasses int
	maxDepth   int
	minSplit   int
	maxFeat    int
	rng        *rand.Rand
}

// grow 递归建树，返回节点下标
func (b *builder) grow(t *Tree, idx []int, depth int) int {
	counts := make([]float64, b.numClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}

	pos := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{})

	stop := len(idx) < b.minSplit || gini(counts, float64(len(idx))) == 0 ||
		(b.maxDepth > 0 && depth > b.maxDepth)
	if !stop {
		if feat, thr, ok := b.bestSplit(idx, counts); ok {
			var left, right []int
			for _, i := range idx {
				if b.x[i][feat] <= thr {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			l := b.grow(t, left, depth+1)
			r := b.grow(t, right, depth+1)
			t.Nodes[pos] = Node{Feature: feat, Threshold: thr, Left: l, Right: r}
			return pos
		}
	}

	probs := make([]float64, b.numClasses)
	for c := range counts {
		probs[c] = counts[c] / float64(len(idx))
	}
	t.Nodes[pos] = Node{Leaf: true, Probs: probs}
	return pos
}

func (b *builder) bestSplit(idx []int, total []float64) (int, float64, bool) {
	nFeatures := len(b.x[0])
	features := b.rng.Perm(nFeatures)[:b.maxFeat]
	n := float64(len(idx))
	bestScore := gini(total, n)
	bestFeat, bestThr, found := 0, 0.0, false

	sorted := make([]int, len(idx))
	left := make([]float64, b.numClasses)
	right := make([]float64, b.numClasses)
	for _, feat := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][feat] < b.x[sorted[j]][feat] })
		for c := range left {
			left[c] = 0
		}
		copy(right, total)

		for k := 0; k < len(sorted)-1; k++ {
			label := b.y[sorted[k]]
			left[label]++
			right[label]--
			cur, next := b.x[sorted[k]][feat], b.x[sorted[k+1]][feat]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			score := (nl*gini(left, nl) + (n-nl)*gini(right, n-nl)) / n
			if score < bestScore {
				bestScore = score
				bestFeat = feat
				bestThr = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeat, bestThr, found
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func argmax[T constraints.Ordered](xs []T) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
