package checkpoint

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/compose"
)

// checkpoint 全局状态存储点，实现 CheckPointStore 接口，用 checkPointID 进行索引。
// 校验中断挂起的轮次靠它持久化，恢复时按线程ID取回。
// 此处用带锁 map 实现，HTTP 服务会并发读写；工程上可以换成工业存储组件。
type checkpoint struct {
	mu  sync.RWMutex
	buf map[string][]byte
}

func (c *checkpoint) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.buf[checkPointID]
	return data, ok, nil
}

func (c *checkpoint) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[checkPointID] = checkPoint
	return nil
}

var checkpointImpl = checkpoint{
	buf: make(map[string][]byte),
}

// NewCheckPoint 返回全局状态存储点实例
func NewCheckPoint() compose.CheckPointStore {
	return &checkpointImpl
}
