// Package bx holds the little-endian byte helpers the storage engine uses
// for its on-disk integers: frame and string-record headers, and metadata
// counters. Trimmed to 32- and 64-bit little-endian get/put, unlike the
// teacher's fuller byte-order toolkit (it also carries big-endian and
// offset-indexed variants for index-key encoding, which this engine has no
// use for — there are no secondary indices here).
package bx

import "encoding/binary"

var le = binary.LittleEndian

func U32(b []byte) uint32 { return le.Uint32(b) }
func U64(b []byte) uint64 { return le.Uint64(b) }

func PutU32(b []byte, v uint32) { le.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { le.PutUint64(b, v) }
