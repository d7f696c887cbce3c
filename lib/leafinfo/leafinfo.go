// Copyright 2026 The Gladius Authors
// SPDX-License-Identifier: Apache-2.0

package leafinfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/lanl/gladius-sub000/lib/fault"
)

const (
	// HostNameLength is the size of each NUL-padded host buffer. Host
	// names must be shorter so at least one NUL remains.
	HostNameLength = 256

	// RecordSize is the encoded size of one Info.
	RecordSize = 2*HostNameLength + 3*4
)

var (
	// ErrInvalidSize is returned for a hand-off file whose size is not
	// a positive multiple of RecordSize. No record is parsed.
	ErrInvalidSize = errors.New("hand-off file size is not a positive multiple of the record size")

	// ErrMultipleTargetsNotSupported is returned when an agent's
	// hand-off file names more than one target.
	ErrMultipleTargetsNotSupported = errors.New("more than one target per back end is not supported")
)

// Info tells a back end where it sits in the overlay: its own rank and
// the node it must attach to.
type Info struct {
	HostName       string
	ParentHostName string
	Rank           int32
	ParentPort     int32
	ParentRank     int32
}

// Dir returns the directory hand-off files live in: $TMPDIR, or /tmp.
func Dir() string {
	if dir := os.Getenv("TMPDIR"); dir != "" {
		return dir
	}
	return "/tmp"
}

// Path returns the hand-off file of agent uid in session sessionKey.
func Path(dir, sessionKey string, uid int) string {
	return filepath.Join(dir, sessionKey+"-"+strconv.Itoa(uid))
}

// Encode packs records in file order.
func Encode(records []Info) ([]byte, error) {
	buffer := make([]byte, 0, len(records)*RecordSize)
	for index, record := range records {
		encoded, err := record.appendTo(buffer)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", index, err)
		}
		buffer = encoded
	}
	return buffer, nil
}

func (i Info) appendTo(buffer []byte) ([]byte, error) {
	for _, host := range []string{i.HostName, i.ParentHostName} {
		if len(host) >= HostNameLength {
			return nil, fmt.Errorf("host name %q is %d bytes, limit is %d", host, len(host), HostNameLength-1)
		}
		if bytes.IndexByte([]byte(host), 0) >= 0 {
			return nil, fmt.Errorf("host name %q contains NUL", host)
		}
		field := make([]byte, HostNameLength)
		copy(field, host)
		buffer = append(buffer, field...)
	}
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(i.Rank))
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(i.ParentPort))
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(i.ParentRank))
	return buffer, nil
}

// Decode unpacks a hand-off file. The size is checked before any
// record is parsed.
func Decode(data []byte) ([]Info, error) {
	if len(data) == 0 || len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes, record size %d", ErrInvalidSize, len(data), RecordSize)
	}
	records := make([]Info, 0, len(data)/RecordSize)
	for offset := 0; offset < len(data); offset += RecordSize {
		record := data[offset : offset+RecordSize]
		numbers := record[2*HostNameLength:]
		records = append(records, Info{
			HostName:       hostField(record[:HostNameLength]),
			ParentHostName: hostField(record[HostNameLength : 2*HostNameLength]),
			Rank:           int32(binary.LittleEndian.Uint32(numbers[0:4])),
			ParentPort:     int32(binary.LittleEndian.Uint32(numbers[4:8])),
			ParentRank:     int32(binary.LittleEndian.Uint32(numbers[8:12])),
		})
	}
	return records, nil
}

func hostField(field []byte) string {
	if end := bytes.IndexByte(field, 0); end >= 0 {
		field = field[:end]
	}
	return string(field)
}

// Write stores records at path atomically: the file appears complete
// or not at all.
func Write(path string, records []Info) error {
	data, err := Encode(records)
	if err != nil {
		return fault.New(fault.Connection, "write hand-off file", err)
	}
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fault.New(fault.Connection, "write hand-off file", err)
	}
	temporaryPath := temporary.Name()
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fault.New(fault.Connection, "write hand-off file", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fault.New(fault.Connection, "write hand-off file", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fault.New(fault.Connection, "write hand-off file", err)
	}
	return nil
}

// ConsumeAll reads every record at path under an exclusive lock and
// removes the file, so each hand-off is used once.
func ConsumeAll(path string) ([]Info, error) {
	const op = "read hand-off file"
	file, err := os.Open(path)
	if err != nil {
		return nil, fault.New(fault.Connection, op, err).
			WithHint("the front end writes %s once the overlay is built; start back ends after it reports the network ready", path)
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		return nil, fault.New(fault.Connection, op, fmt.Errorf("locking %s: %w", path, err))
	}
	defer unix.Flock(int(file.Fd()), unix.LOCK_UN)

	info, err := file.Stat()
	if err != nil {
		return nil, fault.New(fault.Connection, op, err)
	}
	if size := info.Size(); size == 0 || size%RecordSize != 0 {
		return nil, fault.Newf(fault.Connection, op, "%s: %w: %d bytes, record size %d", path, ErrInvalidSize, size, RecordSize)
	}
	data := make([]byte, info.Size())
	if _, err := file.ReadAt(data, 0); err != nil {
		return nil, fault.New(fault.Connection, op, fmt.Errorf("reading %s: %w", path, err))
	}
	records, err := Decode(data)
	if err != nil {
		return nil, fault.New(fault.Connection, op, fmt.Errorf("%s: %w", path, err))
	}
	if err := os.Remove(path); err != nil {
		return nil, fault.New(fault.Connection, op, err)
	}
	return records, nil
}

// Consume reads the single record an agent is allowed at path.
func Consume(path string) (Info, error) {
	records, err := ConsumeAll(path)
	if err != nil {
		return Info{}, err
	}
	if len(records) > 1 {
		return Info{}, fault.Newf(fault.Connection, "read hand-off file", "%s holds %d targets: %w", path, len(records), ErrMultipleTargetsNotSupported)
	}
	return records[0], nil
}
