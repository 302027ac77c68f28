package util

import (
	"crypto/rand"
	"math/big"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GetRandomString returns a random alphanumeric string of length n
// GetRandomString 生成长度为 n 的随机字母数字字符串
func GetRandomString(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(letters)))
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = letters[i%len(letters)]
			continue
		}
		b[i] = letters[v.Int64()]
	}
	return string(b)
}
