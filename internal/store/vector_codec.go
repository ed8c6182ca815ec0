package store

import (
	"bytes"
	"encoding/binary"
)

// encodeEmbedding serializes a float32 vector as a little-endian BLOB,
// grounded on theRebelliousNerd-codenerd/internal/store/vector_store.go's
// encodeFloat32Slice function.
func encodeEmbedding(vec []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

func decodeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	_ = binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec)
	return vec
}
