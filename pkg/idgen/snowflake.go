package idgen

import (
	"fmt"
	"sync"
	"time"
)

// 64 位雪花 ID：41 位毫秒时间戳 | 10 位机器号 | 12 位序列号
const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// 单号前缀
const (
	PrefixOrder  = "ORD"
	PrefixLedger = "TXN"
	PrefixRefund = "REF"
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间: %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		// 时钟回拨时沿用上一次的时间戳
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// Number 前缀 + 秒级时间 + 完整雪花ID，例如 ORD20240115143052-123456789012345
func (s *Snowflake) Number(prefix string) string {
	return fmt.Sprintf("%s%s-%d", prefix, time.Now().Format("20060102150405"), s.Generate())
}

var (
	defaultGenerator *Snowflake
	mu               sync.Mutex
)

// Init 设置默认生成器的机器号，多实例部署时每个实例必须不同
func Init(workerID int64) error {
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultGenerator = g
	mu.Unlock()
	return nil
}

func generator() *Snowflake {
	mu.Lock()
	defer mu.Unlock()
	if defaultGenerator == nil {
		defaultGenerator, _ = NewSnowflake(1)
	}
	return defaultGenerator
}

func NextID() int64 {
	return generator().Generate()
}

func OrderNo() string {
	return generator().Number(PrefixOrder)
}

func LedgerNo() string {
	return generator().Number(PrefixLedger)
}

func RefundNo() string {
	return generator().Number(PrefixRefund)
}
