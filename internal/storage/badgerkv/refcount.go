package badgerkv

import (
	"encoding/binary"
	"fmt"
)

func encodeInt64(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v))
}

func decodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("badgerkv: counter value wrong length: %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
