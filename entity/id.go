package entity

import (
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"
)

const (
	idSuffixLen = 9
	idAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	idMu  sync.Mutex
	idRng = rand.New(rand.NewSource(time.Now().UnixNano()))

	idPattern = regexp.MustCompile(`^player_\d+_[0-9a-z]{9}$`)
)

// GenerateUniqueID 生成 player_<毫秒时间戳>_<9位base36随机后缀>
// 非加密用途，只要求极大概率不重复
func GenerateUniqueID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return NewID(time.Now(), idRng)
}

// NewID 使用给定时间与随机源生成 id（便于测试复现）
func NewID(now time.Time, rng *rand.Rand) string {
	suffix := make([]byte, idSuffixLen)
	for i := range suffix {
		suffix[i] = idAlphabet[rng.Intn(len(idAlphabet))]
	}
	return fmt.Sprintf("player_%d_%s", now.UnixMilli(), suffix)
}

// ValidID 校验 id 格式
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
