package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/whisperengine-ai/whisperengine-sub002/pkg/types"
)

// vectorColumns maps each dimension to its BLOB column. Column names are
// never built from caller input.
var vectorColumns = map[types.Dimension]string{
	types.DimensionContent:      "vec_content",
	types.DimensionEmotion:      "vec_emotion",
	types.DimensionSemantic:     "vec_semantic",
	types.DimensionRelationship: "vec_relationship",
	types.DimensionSituational:  "vec_situational",
	types.DimensionPersonality:  "vec_personality",
}

// serializeVector encodes a vector as little-endian float32 values.
func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeVector decodes a BLOB written by serializeVector. dims is used
// to validate the buffer size.
func deserializeVector(buf []byte, dims int) ([]float32, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dims)
	}
	if len(buf) != dims*4 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dims*4, len(buf))
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// cosineSimilarity computes cosine similarity between two equal-length vectors.
// Returns 0 if either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// buildInClause returns a comma-separated string of n "?" placeholders.
func buildInClause(n int) string {
	if n == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
