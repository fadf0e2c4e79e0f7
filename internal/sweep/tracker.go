package sweep

import "io"

// Tracker 维护 sweep 期间唯一的最佳模型。
//
// EMPTY --成功--> HOLDING；HOLDING 只在指标严格大于当前值时替换（并列时先到者胜）；
// 失败的 run 不会引起状态变化。
type Tracker struct {
	metric float64
	model  Model
	runID  string
	index  int
	held   bool
}

// NewTracker sentinel 为初始阈值，准确率取 0
func NewTracker(sentinel float64) *Tracker {
	return &Tracker{metric: sentinel, index: -1}
}

// Offer 提交一次成功的 run。被晋升返回 true；
// 未晋升的模型及被替换的旧模型都会被释放。
func (t *Tracker) Offer(runID string, index int, metric float64, model Model) bool {
	if !(metric > t.metric) {
		release(model)
		return false
	}
	if t.held {
		release(t.model)
	}
	t.metric = metric
	t.model = model
	t.runID = runID
	t.index = index
	t.held = true
	return true
}

func (t *Tracker) Holding() bool { return t.held }

func (t *Tracker) Metric() float64 { return t.metric }

func (t *Tracker) RunID() string { return t.runID }

func (t *Tracker) Index() int { return t.index }

// Take 取走最佳模型的所有权，之后 tracker 不再持有它
func (t *Tracker) Take() Model {
	m := t.model
	t.model = nil
	return m
}

func release(m Model) {
	if c, ok := m.(io.Closer); ok {
		_ = c.Close()
	}
}
