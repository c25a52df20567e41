package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint 由食材名稱計算快取鍵：排序後以 ", " 串接再取 SHA-256
//
// 名稱保留原樣不做大小寫轉換；輸入順序不影響結果。
func Fingerprint(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, ", ")))
	return hex.EncodeToString(sum[:])
}
