package rpcsurface

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/blite-io/blite-server/internal/queryd"
)

// writeFloatVector frames a []float32 as count(uvarint) + 4 bytes each,
// big-endian, the RPC surface's wire shape for VectorSearch's queryVector
// field (spec.md §4.9's VectorSearch inputs).
func (w *payloadWriter) writeFloatVector(v []float32) {
	w.writeUvarint(uint64(len(v)))
	var tmp [4]byte
	for _, f := range v {
		binary.BigEndian.PutUint32(tmp[:], math.Float32bits(f))
		w.buf.Write(tmp[:])
	}
}

func (r *payloadReader) readFloatVector() ([]float32, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	var tmp [4]byte
	for i := range out {
		if err := queryd.ReadFull(r.r, tmp[:]); err != nil {
			return nil, fmt.Errorf("rpcsurface: truncated float vector")
		}
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(tmp[:]))
	}
	return out, nil
}
