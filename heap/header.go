package heap

import "github.com/bnclabs/goevac/api"

// Header is the per-object metadata word at the object's base address.
// It is the only word multiple workers mutate concurrently, always via
// compare-and-swap.
//
// Layout:
//   tag(1:0) age(5:2) array(6) size(31:8) displaced-index(55:32)
//
// tag 00 - neutral, header carries age/array/size.
// tag 01 - displaced, the true header lives in the heap's displaced
//          table at displaced-index; size/array bits remain valid.
// tag 11 - forwarded, bits 63:2 carry the forwardee address.
type Header uint64

const (
	hdrTagMask      = uint64(0x3)
	hdrTagNeutral   = uint64(0x0)
	hdrTagDisplaced = uint64(0x1)
	hdrTagForwarded = uint64(0x3)

	hdrAgeShift   = 2
	hdrAgeMask    = uint64(0xf) << hdrAgeShift
	hdrArrayBit   = uint64(1) << 6
	hdrSizeShift  = 8
	hdrSizeMask   = uint64(0xffffff) << hdrSizeShift
	hdrDisplShift = 32
	hdrDisplMask  = uint64(0xffffff) << hdrDisplShift
)

// MaxObjectWords largest encodable object size.
const MaxObjectWords = int64(1 << 24)

func newHeader(size int64, age uint, isarray bool) Header {
	if size <= 0 || size >= MaxObjectWords {
		panicerr("object size %v out of range", size)
	} else if age > api.MaxAge {
		panicerr("age %v exceeds %v", age, api.MaxAge)
	}
	hdr := uint64(size)<<hdrSizeShift | uint64(age)<<hdrAgeShift
	if isarray {
		hdr |= hdrArrayBit
	}
	return Header(hdr)
}

func forwardHeader(to api.Addr) Header {
	return Header(uint64(to)<<2 | hdrTagForwarded)
}

// IsForwarded return whether this header is a forwarding marker.
func (hdr Header) IsForwarded() bool {
	return uint64(hdr)&hdrTagMask == hdrTagForwarded
}

// Forwardee return the forwarding target. Valid only when forwarded.
func (hdr Header) Forwardee() api.Addr {
	return api.Addr(uint64(hdr) >> 2)
}

// HasDisplaced return whether the true header is kept in the heap's
// displaced table, as part of the mark-preservation mechanism.
func (hdr Header) HasDisplaced() bool {
	return uint64(hdr)&hdrTagMask == hdrTagDisplaced
}

func (hdr Header) displacedIndex() int64 {
	return int64((uint64(hdr) & hdrDisplMask) >> hdrDisplShift)
}

// Age return the object age encoded in a neutral header. For displaced
// headers the age must be read through the displaced copy.
func (hdr Header) Age() uint {
	return uint((uint64(hdr) & hdrAgeMask) >> hdrAgeShift)
}

// SetAge return a copy of this header with its age bits replaced.
func (hdr Header) SetAge(age uint) Header {
	if age > api.MaxAge {
		panicerr("age %v exceeds %v", age, api.MaxAge)
	}
	return Header(uint64(hdr)&^hdrAgeMask | uint64(age)<<hdrAgeShift)
}

// Size return the object size in words, header and length word
// included. Valid for neutral and displaced headers.
func (hdr Header) Size() int64 {
	return int64((uint64(hdr) & hdrSizeMask) >> hdrSizeShift)
}

// IsArray return whether the object is an array, with a length word
// following the header.
func (hdr Header) IsArray() bool {
	return uint64(hdr)&hdrArrayBit != 0
}
