// Package xdr implements the primitive External Data Representation
// (RFC 4506) encode/decode helpers the NFS and MOUNT payload codecs are
// built from: fixed-width integers, opaque byte strings, and the
// 4-byte alignment padding XDR requires of everything that isn't
// already a multiple of 4 bytes long.
package xdr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ErrOpaqueTooLarge is returned by DecodeOpaque/DecodeString when the
// declared length exceeds MaxOpaqueLen, guarding against a malformed or
// hostile length prefix driving an enormous allocation.
var ErrOpaqueTooLarge = errors.New("xdr: opaque length exceeds maximum")

// MaxOpaqueLen bounds any single length-prefixed opaque or string this
// server will decode, WRITE's data field included. RFC 1813 payloads
// never legitimately need more than a few hundred bytes outside of that
// field; the bound sits above the 1 MiB wtmax the server advertises.
const MaxOpaqueLen = 4 * 1024 * 1024

// Padding returns the number of zero-fill bytes needed after a value of
// the given length to bring it up to a 4-byte boundary.
func Padding(length int) int {
	return (4 - (length % 4)) % 4
}

func EncodeUint32(w *bytes.Buffer, v uint32) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func EncodeUint64(w *bytes.Buffer, v uint64) {
	_ = binary.Write(w, binary.BigEndian, v)
}

func EncodeBool(w *bytes.Buffer, v bool) {
	if v {
		EncodeUint32(w, 1)
	} else {
		EncodeUint32(w, 0)
	}
}

// EncodeOpaque writes a variable-length opaque: a 4-byte length prefix,
// the bytes themselves, then zero-fill padding to a 4-byte boundary.
func EncodeOpaque(w *bytes.Buffer, data []byte) {
	EncodeUint32(w, uint32(len(data)))
	w.Write(data)
	w.Write(make([]byte, Padding(len(data))))
}

// EncodeString writes a variable-length string using the same wire
// shape as EncodeOpaque.
func EncodeString(w *bytes.Buffer, s string) {
	EncodeOpaque(w, []byte(s))
}

func DecodeUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func DecodeUint64(r io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func DecodeBool(r io.Reader) (bool, error) {
	v, err := DecodeUint32(r)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// DecodeOpaque reads a variable-length opaque: a 4-byte length prefix,
// that many bytes, then discards the padding bytes up to the next
// 4-byte boundary.
func DecodeOpaque(r io.Reader) ([]byte, error) {
	length, err := DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	if length > MaxOpaqueLen {
		return nil, ErrOpaqueTooLarge
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	if pad := Padding(int(length)); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func DecodeString(r io.Reader) (string, error) {
	data, err := DecodeOpaque(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
