package codegen

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// rlinkMagic starts every .rlink file, followed by a big-endian version.
var rlinkMagic = []byte("cdrlink\x00")

const rlinkVersion uint16 = 1

// ErrNotRlink is returned when a file is not a serialized codegen result.
var ErrNotRlink = errors.New("not an rlink file")

// SerializeRlink writes results to path.
func SerializeRlink(path string, results *Results) error {
	body, err := msgpack.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding codegen results: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(rlinkMagic)
	_ = binary.Write(&buf, binary.BigEndian, rlinkVersion)
	buf.Write(body)
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// DeserializeRlink reads results written by SerializeRlink.
func DeserializeRlink(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, rlinkMagic) || len(data) < len(rlinkMagic)+2 {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRlink)
	}
	data = data[len(rlinkMagic):]
	if v := binary.BigEndian.Uint16(data); v != rlinkVersion {
		return nil, fmt.Errorf("%s: rlink version %d, expected %d", path, v, rlinkVersion)
	}
	var results Results
	if err := msgpack.Unmarshal(data[2:], &results); err != nil {
		return nil, fmt.Errorf("%s: decoding codegen results: %w", path, err)
	}
	return &results, nil
}
