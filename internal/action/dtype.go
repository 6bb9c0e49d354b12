package action

import "encoding/binary"

// Int64 is a minimal concrete DataType for exercising RBufLocalReduce in
// tests; a real deployment always gets DataType/ReduceOp from the engine's
// TransitionContext.
var Int64 = DataType{Name: "int64", ElemSize: 8}

// AddInt64 is a ReduceOp performing dst[i] += src[i] over count int64
// elements, little-endian encoded.
func AddInt64(dst, src []byte, count, elemSize int) {
	for i := 0; i < count; i++ {
		off := i * elemSize
		d := int64(binary.LittleEndian.Uint64(dst[off : off+elemSize]))
		s := int64(binary.LittleEndian.Uint64(src[off : off+elemSize]))
		binary.LittleEndian.PutUint64(dst[off:off+elemSize], uint64(d+s))
	}
}

// EncodeInt64s packs a slice of int64 values into bytes, for test fixtures.
func EncodeInt64s(vs []int64) []byte {
	buf := make([]byte, len(vs)*8)
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], uint64(v))
	}
	return buf
}

// DecodeInt64s unpacks bytes into a slice of int64 values, for assertions.
func DecodeInt64s(buf []byte) []int64 {
	vs := make([]int64, len(buf)/8)
	for i := range vs {
		vs[i] = int64(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return vs
}
