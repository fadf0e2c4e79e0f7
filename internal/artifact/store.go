package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const filePrefix = "best_model_"

// FileStore 把最佳模型以 JSON 写入固定目录：<dir>/best_model_<run_id>.json
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Path(suffix string) string {
	return filepath.Join(s.Dir, filePrefix+sanitize(suffix)+".json")
}

func (s *FileStore) Save(model any, suffix string) (string, error) {
	if model == nil {
		return "", errors.New("nil model")
	}
	if strings.TrimSpace(suffix) == "" {
		return "", errors.New("empty artifact suffix")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("创建模型目录失败: %w", err)
	}

	b, err := json.Marshal(model)
	if err != nil {
		return "", fmt.Errorf("序列化模型失败: %w", err)
	}

	path := s.Path(suffix)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", fmt.Errorf("写入模型失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("写入模型失败: %w", err)
	}
	return path, nil
}

// Load 读回模型到 dst
func (s *FileStore) Load(suffix string, dst any) error {
	b, err := os.ReadFile(s.Path(suffix))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// List 目录下已保存的模型文件名（排序后）
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// sanitize 外部 run id 只允许出现在文件名里的安全字符
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
