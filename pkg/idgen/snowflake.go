package idgen

import (
	"fmt"
	"sync"
	"time"
)

// 雪花算法结构（64位）：
//
//	0 | 41位毫秒时间戳 | 10位节点ID | 12位序列号
//
// 同一节点内严格递增，多实例部署时通过 server.node_id 区分节点。
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	nodeIDBits     = 10
	sequenceBits   = 12
	MaxNodeID      = -1 ^ (-1 << nodeIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	nodeIDShift    = sequenceBits
	timestampShift = sequenceBits + nodeIDBits
)

// Snowflake ID 生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	sequence  int64
}

// NewSnowflake 创建生成器，nodeID 超出范围时返回错误
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("nodeID 必须在 0-%d 之间, 当前: %d", MaxNodeID, nodeID)
	}
	return &Snowflake{nodeID: nodeID}, nil
}

var (
	defaultGenerator = &Snowflake{nodeID: 1}
	initOnce         sync.Once
)

// Init 设置默认生成器的节点ID，只有第一次调用生效
func Init(nodeID int64) error {
	var err error
	initOnce.Do(func() {
		var g *Snowflake
		g, err = NewSnowflake(nodeID)
		if err == nil {
			defaultGenerator = g
		}
	})
	return err
}

// NextID 生成下一个ID
func NextID() int64 {
	return defaultGenerator.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		// 时钟回拨时沿用上一次的时间戳，靠序列号保证唯一
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 当前毫秒序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.nodeID << nodeIDShift) |
		s.sequence
}

// 业务单号前缀
const (
	PrefixOrder       = "GO"
	PrefixTransaction = "WT"
	PrefixTransfer    = "TF"
	PrefixRecharge    = "RC"
)

func format(prefix string, id int64) string {
	return fmt.Sprintf("%s%s%019d", prefix, time.Now().Format("20060102"), id)
}

// GenerateOrderNo 生成订单号，例如 GO20240115000123456789012345678
func GenerateOrderNo() string {
	return format(PrefixOrder, NextID())
}

// GenerateTransactionNo 生成钱包流水号
func GenerateTransactionNo() string {
	return format(PrefixTransaction, NextID())
}

// GenerateTransferNo 生成转账单号，转出和转入两条流水共用
func GenerateTransferNo() string {
	return format(PrefixTransfer, NextID())
}

// GenerateRechargeNo 生成充值单号
func GenerateRechargeNo() string {
	return format(PrefixRecharge, NextID())
}
