package arena

import "unsafe"

// ContainStatus classifies an address against an arena's blocks.
type ContainStatus int

const (
	NotContain ContainStatus = iota
	BlockHeader
	BlockUsed
	BlockUnUsed
	BlockCleanup
)

func (s ContainStatus) String() string {
	switch s {
	case BlockHeader:
		return "BlockHeader"
	case BlockUsed:
		return "BlockUsed"
	case BlockUnUsed:
		return "BlockUnUsed"
	case BlockCleanup:
		return "BlockCleanup"
	default:
		return "NotContain"
	}
}

// Check reports which part of which block, if any, p points into.
func (a *Arena) Check(p unsafe.Pointer) ContainStatus {
	addr := uintptr(p)
	for b := a.lastBlock; b != nil; b = b.prev {
		base := b.base()
		if addr < base || addr >= base+uintptr(b.size) {
			continue
		}
		switch off := uint64(addr - base); {
		case off < BlockHeaderSize:
			return BlockHeader
		case off < b.pos:
			return BlockUsed
		case off < b.limit:
			return BlockUnUsed
		default:
			return BlockCleanup
		}
	}
	return NotContain
}
