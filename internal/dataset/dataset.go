package dataset

import (
	"context"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Split 固定的训练/测试划分
type Split struct {
	TrainFeatures [][]float64
	TrainLabels   []int
	TestFeatures  [][]float64
	TestLabels    []int
	NumClasses    int
}

// Provider 数据集提供者：相同 seed 必须返回相同划分
type Provider interface {
	Load(ctx context.Context) (*Split, error)
}

var ErrEmptyDataset = errors.New("dataset is empty")

//go:embed iris.csv
var irisCSV string

// Iris Fisher iris 数据集（150 条，3 类），数据固定，seed 只影响划分
type Iris struct {
	Seed     int64
	TestSize float64
}

func (p Iris) Load(ctx context.Context) (*Split, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x, y, err := readCSV(strings.NewReader(irisCSV))
	if err != nil {
		return nil, fmt.Errorf("解析内置 iris 数据失败: %w", err)
	}
	return StratifiedSplit(x, y, p.TestSize, p.Seed)
}

// CSV 从文件加载，最后一列为类别标签，首行为表头
type CSV struct {
	Path     string
	Seed     int64
	TestSize float64
}

func (p CSV) Load(ctx context.Context) (*Split, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	x, y, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("解析数据文件失败: %w", err)
	}
	return StratifiedSplit(x, y, p.TestSize, p.Seed)
}

func readCSV(r io.Reader) ([][]float64, []int, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, ErrEmptyDataset
	}

	labelIDs := map[string]int{}
	var x [][]float64
	var y []int
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, nil, fmt.Errorf("line %d: need at least one feature and a label", i+2)
		}
		feat := make([]float64, len(row)-1)
		for j, cell := range row[:len(row)-1] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d col %d: %w", i+2, j+1, err)
			}
			feat[j] = v
		}
		label := strings.TrimSpace(row[len(row)-1])
		id, ok := labelIDs[label]
		if !ok {
			id = len(labelIDs)
			labelIDs[label] = id
		}
		x = append(x, feat)
		y = append(y, id)
	}
	return x, y, nil
}

// StratifiedSplit 按类别分层抽样，每类按 testSize 比例进入测试集
func StratifiedSplit(x [][]float64, y []int, testSize float64, seed int64) (*Split, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, ErrEmptyDataset
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, fmt.Errorf("test size %v out of range (0,1)", testSize)
	}

	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	rng := rand.New(rand.NewSource(seed))
	split := &Split{NumClasses: labels[len(labels)-1] + 1}
	for _, label := range labels {
		idx := byClass[label]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(float64(len(idx))*testSize + 0.5)
		for k, i := range idx {
			if k < nTest {
				split.TestFeatures = append(split.TestFeatures, x[i])
				split.TestLabels = append(split.TestLabels, y[i])
			} else {
				split.TrainFeatures = append(split.TrainFeatures, x[i])
				split.TrainLabels = append(split.TrainLabels, y[i])
			}
		}
	}
	if len(split.TrainLabels) == 0 || len(split.TestLabels) == 0 {
		return nil, fmt.Errorf("split of %d samples left an empty side", len(y))
	}
	return split, nil
}
