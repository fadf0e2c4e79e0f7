package sweep

import (
	"fmt"
	"time"
)

// runIDScopeLen sweep id 中用作 run id 后缀的字符数
const runIDScopeLen = 6

// RunIDs 生成 sweep 内唯一的 run id：<prefix>_<序号>_<HHMMSS>_<微秒>[_<scope>]
// 序号保证同一秒内也不重复，时间部分保证重跑 sweep 时文件名不冲突，
// scope 取自 sweep id，并发的 sweep 之间互不冲突。
type RunIDs struct {
	Prefix string
	Scope  string
	Now    func() time.Time
	seq    int
}

func (g *RunIDs) Next() string {
	g.seq++
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = "run"
	}
	t := now()
	id := fmt.Sprintf("%s_%d_%s_%06d", prefix, g.seq, t.Format("150405"), t.Nanosecond()/1000)
	if g.Scope != "" {
		id += "_" + g.Scope
	}
	return id
}
