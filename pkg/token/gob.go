package token

import (
	"bytes"

	"github.com/dave/stablegob"
)

// EncodeTransferArgs produces the deterministic bytes form of a
// transfer payload. Deterministic encoding matters: the same logical
// call must hash identically everywhere.
func EncodeTransferArgs(a TransferArgs) []byte {
	var buf bytes.Buffer
	enc := stablegob.NewEncoder(&buf)
	err := enc.Encode(a)
	if err != nil {
		// should not happen
		panic(err)
	}
	return buf.Bytes()
}

func DecodeTransferArgs(b []byte) (TransferArgs, error) {
	var a TransferArgs
	dec := stablegob.NewDecoder(bytes.NewBuffer(b))
	err := dec.Decode(&a)
	return a, err
}
