package p2p

import (
	"bytes"
	"io"

	"github.com/ethereum/go-ethereum/rlp"
)

func encodeRLP(val interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(val)
}

func decodeRLP(r io.Reader, val interface{}) error {
	s := rlp.NewStream(r, 0)
	return s.Decode(val)
}

func encodeRLPList(elems ...interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rlp.Encode(buf, elems); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
