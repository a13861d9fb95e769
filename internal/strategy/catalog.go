package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"cryptorules/internal/logger"
)

// Catalog 维护预置策略清单，来源是一个 YAML 文件，支持热更新。
// 清单中的策略是只读的，用户自建策略走 Store。
type Catalog struct {
	path string

	mu   sync.RWMutex
	list []Strategy

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// catalogFile 是 YAML 文件的顶层结构。
type catalogFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

// LoadCatalog 读取并校验预置策略文件。清单里有一条解析不过的策略即整体失败，
// 避免把坏策略静默带进运行时。
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) reload() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("读取策略清单失败: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("解析策略清单失败: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Strategies))
	for i, s := range file.Strategies {
		if s.ID == "" {
			return fmt.Errorf("清单第 %d 条策略缺少 id", i+1)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("清单策略 id 重复: %s", s.ID)
		}
		seen[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("清单策略 %s 无效: %w", s.ID, err)
		}
	}
	c.mu.Lock()
	c.list = file.Strategies
	c.mu.Unlock()
	return nil
}

// Watch 启动文件监听，清单变更后自动重载；重载失败保留旧清单。
func (c *Catalog) Watch() error {
	if c.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		watcher.Close()
		return err
	}
	c.watcher = watcher
	c.done = make(chan struct{})
	go func() {
		for {
			select {
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != filepath.Clean(c.path) {
					continue
				}
				if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
					continue
				}
				if err := c.reload(); err != nil {
					logger.Errorf("策略清单重载失败（保留旧清单）: %v", err)
					continue
				}
				logger.Infof("策略清单已重载: %s", c.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("策略清单监听错误: %v", err)
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

// Close 停止监听。
func (c *Catalog) Close() error {
	if c.watcher == nil {
		return nil
	}
	close(c.done)
	err := c.watcher.Close()
	c.watcher = nil
	return err
}

// List 返回当前清单副本。
func (c *Catalog) List() []Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Strategy, len(c.list))
	copy(out, c.list)
	return out
}

// Get 按 ID 查找预置策略。
func (c *Catalog) Get(id string) (Strategy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.list {
		if s.ID == id {
			return s, true
		}
	}
	return Strategy{}, false
}
