package evaluation

import (
	"crypto/md5"
	"encoding/binary"
)

// Bucket maps a context attribute value and a flag key to a deterministic
// rollout bucket in [0,100). The input is "<hashValue>:<flagKey>"; the bucket
// is the first 32 bits of its MD5 digest, read big-endian as an unsigned
// integer, modulo 100. MD5 is used as a cheap uniform mixer, not for
// security. The function is pure, so a given user always lands in the same
// bucket for a given flag, across processes and restarts.
func Bucket(hashValue, flagKey string) int {
	sum := md5.Sum([]byte(hashValue + ":" + flagKey))
	return int(binary.BigEndian.Uint32(sum[:4]) % 100)
}
