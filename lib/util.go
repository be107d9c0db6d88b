package lib

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Marshal() serializes a record into deterministic binary form
func Marshal(message any) ([]byte, ErrorI) {
	bz, err := cramberry.Marshal(message)
	if err != nil {
		return nil, ErrMarshal(err)
	}
	return bz, nil
}

// Unmarshal() deserializes deterministic binary bytes into the record ptr
func Unmarshal(data []byte, ptr any) ErrorI {
	if data == nil || ptr == nil {
		return nil
	}
	if err := cramberry.Unmarshal(data, ptr); err != nil {
		return ErrUnmarshal(err)
	}
	return nil
}

// MarshalJSON() serializes a message into a JSON byte slice
func MarshalJSON(message any) ([]byte, ErrorI) {
	bz, err := json.Marshal(message)
	if err != nil {
		return nil, ErrJSONMarshal(err)
	}
	return bz, nil
}

// MarshalJSONIndent() serializes a message into an indented JSON byte slice
func MarshalJSONIndent(message any) ([]byte, ErrorI) {
	bz, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		return nil, ErrJSONMarshal(err)
	}
	return bz, nil
}

// MarshalJSONIndentString() serializes a message into an indented JSON string
func MarshalJSONIndentString(message any) (string, ErrorI) {
	bz, err := MarshalJSONIndent(message)
	return string(bz), err
}

// UnmarshalJSON() deserializes a JSON byte slice into the specified object
func UnmarshalJSON(bz []byte, ptr any) ErrorI {
	if err := json.Unmarshal(bz, ptr); err != nil {
		return ErrJSONUnmarshal(err)
	}
	return nil
}

// NewJSONFromFile() reads a json object from file
func NewJSONFromFile(o any, dataDirPath, filePath string) ErrorI {
	bz, err := os.ReadFile(filepath.Join(dataDirPath, filePath))
	if err != nil {
		return ErrReadFile(err)
	}
	return UnmarshalJSON(bz, o)
}

// SaveJSONToFile() saves a json object to a file
// the write goes to a temporary sibling that is fsynced and renamed over the target so readers never see a torn file
func SaveJSONToFile(j any, dataDirPath, filePath string) ErrorI {
	bz, err := MarshalJSONIndent(j)
	if err != nil {
		return err
	}
	target := filepath.Join(dataDirPath, filePath)
	tmp, e := os.CreateTemp(dataDirPath, filePath+".*.tmp")
	if e != nil {
		return ErrWriteFile(e)
	}
	defer os.Remove(tmp.Name())
	if _, e = tmp.Write(bz); e != nil {
		tmp.Close()
		return ErrWriteFile(e)
	}
	if e = tmp.Sync(); e != nil {
		tmp.Close()
		return ErrWriteFile(e)
	}
	if e = tmp.Close(); e != nil {
		return ErrWriteFile(e)
	}
	if e = os.Rename(tmp.Name(), target); e != nil {
		return ErrWriteFile(e)
	}
	return nil
}

// BytesToString() converts a byte slice to a hexadecimal string
func BytesToString(b []byte) string {
	return hex.EncodeToString(b)
}

// StringToBytes() converts a hexadecimal string back into a byte slice
func StringToBytes(s string) ([]byte, ErrorI) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrStringToBytes(err)
	}
	return b, nil
}

// BytesToTruncatedString() converts a byte slice to a truncated hexadecimal string
func BytesToTruncatedString(b []byte) string {
	if len(b) <= 10 {
		return BytesToString(b)
	}
	return BytesToString(b[:10])
}

// HexBytes represents a byte slice that can be marshaled and unmarshalled as hex strings
type HexBytes []byte

// NewHexBytesFromString() converts a hexadecimal string into HexBytes
func NewHexBytesFromString(s string) (HexBytes, ErrorI) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrJSONUnmarshal(err)
	}
	return bz, nil
}

// String() returns the HexBytes as a hexadecimal string
func (x HexBytes) String() string {
	return BytesToString(x)
}

// MarshalJSON() serializes the HexBytes to a JSON byte slice
func (x HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(BytesToString(x))
}

// UnmarshalJSON() deserializes a JSON byte slice into HexBytes
func (x *HexBytes) UnmarshalJSON(b []byte) (err error) {
	var s string
	if err = json.Unmarshal(b, &s); err != nil {
		return err
	}
	*x, err = StringToBytes(s)
	return
}

// CatchPanic() catches any panic in the function call or child function calls
func CatchPanic(l LoggerI) {
	if r := recover(); r != nil {
		l.Errorf("recovered from panic: %v\n%s", r, string(debug.Stack()))
	}
}

// JoinLenPrefix() appends the items together separated by a single byte to represent the length of the segment
func JoinLenPrefix(toAppend ...[]byte) (res []byte) {
	// for each item to append
	for _, item := range toAppend {
		if item == nil {
			continue
		}
		// store the length of the segment in a single byte
		length := []byte{byte(len(item))}
		// append to the reset of the segment
		res = append(append(res, length...), item...)
	}
	return
}

// TimeSince() returns the milliseconds elapsed since start, for log lines
func TimeSince(start time.Time) int64 { return time.Since(start).Milliseconds() }
