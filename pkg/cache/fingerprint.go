package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// fingerprintKeys is the whitelist of context attributes that participate in
// evaluation-result cache keys. Attributes outside the list cannot change an
// evaluation's cacheable identity, and keeping the list fixed stops
// unbounded caller-controlled key cardinality.
var fingerprintKeys = []string{"user_id", "session_id", "user_tier", "country", "plan_type"}

// ContextFingerprint derives a deterministic digest of the relevant context
// attributes. Identical relevant context always produces the same
// fingerprint regardless of map iteration or attribute insertion order:
// the whitelisted pairs are serialized as canonical JSON (object keys
// sorted) and hashed with MD5.
func ContextFingerprint(evalCtx evaluation.Context) string {
	relevant := make(map[string]any, len(fingerprintKeys))
	for _, key := range fingerprintKeys {
		if v, ok := evalCtx[key]; ok {
			relevant[key] = v
		}
	}

	// encoding/json sorts map keys, which is what makes this canonical.
	data, err := json.Marshal(relevant)
	if err != nil {
		data = []byte("{}")
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
