package cluster

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
)

// frame layout: [length:4][crc32:4][type:1][payload...], matching the write
// log's entry framing. length counts everything after itself (crc32 +
// type + payload); crc32 covers type + payload, not the length prefix.
const frameHeaderLen = 4 + 4 + 1

// maxFrameLen bounds a single decoded frame to guard against a corrupt or
// malicious length prefix forcing an unbounded allocation.
const maxFrameLen = 64 << 20

func encodeFrame(msgType MessageType, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cluster: encode %T: %w", payload, err)
	}

	crc := crc32.ChecksumIEEE(append([]byte{byte(msgType)}, body...))

	length := uint32(4 + 1 + len(body))
	frame := make([]byte, 4+length)
	binary.BigEndian.PutUint32(frame[0:4], length)
	binary.BigEndian.PutUint32(frame[4:8], crc)
	frame[8] = byte(msgType)
	copy(frame[9:], body)
	return frame, nil
}

// writeFrame writes one frame to w.
func writeFrame(w io.Writer, msgType MessageType, payload any) error {
	frame, err := encodeFrame(msgType, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// readFrame reads one frame from r, returning its type and raw JSON body.
func readFrame(r io.Reader) (MessageType, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 5 || int64(length) > maxFrameLen {
		return 0, nil, fmt.Errorf("cluster: invalid frame length %d", length)
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, err
	}

	wantCRC := binary.BigEndian.Uint32(rest[0:4])
	msgType := MessageType(rest[4])
	body := rest[5:]

	gotCRC := crc32.ChecksumIEEE(append([]byte{rest[4]}, body...))
	if gotCRC != wantCRC {
		return 0, nil, fmt.Errorf("cluster: frame checksum mismatch, type %d", msgType)
	}
	return msgType, body, nil
}

// decodePayload unmarshals a frame's body into a known message type.
func decodePayload[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("cluster: decode payload: %w", err)
	}
	return v, nil
}
