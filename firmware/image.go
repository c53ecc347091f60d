package firmware

import "sort"

// Segment is one contiguous run of firmware bytes at an absolute address.
type Segment struct {
	// Address is the absolute load address of the first byte
	Address uint32

	// Data is the segment payload
	Data []byte
}

// End returns the address one past the last byte of the segment.
func (s Segment) End() uint32 {
	return s.Address + uint32(len(s.Data))
}

// Image is a sparse firmware memory image assembled from parsed records.
// Segments are kept sorted by address, non-overlapping, and coalesced:
// records that touch or overlap are merged into a single segment, with
// later writes winning on overlap.
type Image struct {
	segments []Segment
}

// Segments returns the image's segments in ascending address order.
// The returned slice is owned by the image and must not be modified.
func (img *Image) Segments() []Segment {
	return img.segments
}

// Size returns the number of data bytes in the image, holes excluded.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.segments {
		n += len(s.Data)
	}
	return n
}

// MergedData flattens the image into one contiguous block, padding any
// holes between segments with the fill byte. Returns the start address
// and the flattened data. An empty image returns (0, nil).
func (img *Image) MergedData(fill byte) (uint32, []byte) {
	if len(img.segments) == 0 {
		return 0, nil
	}
	start := img.segments[0].Address
	end := img.segments[len(img.segments)-1].End()
	out := make([]byte, end-start)
	for i := range out {
		out[i] = fill
	}
	for _, s := range img.segments {
		copy(out[s.Address-start:], s.Data)
	}
	return start, out
}

// add inserts one record's bytes into the image. Overlapping parts of
// existing segments are replaced; touching runs are merged afterwards.
func (img *Image) add(addr uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	newStart := addr
	newEnd := addr + uint32(len(data))

	kept := make([]Segment, 0, len(img.segments)+2)
	for _, s := range img.segments {
		if s.End() <= newStart || s.Address >= newEnd {
			kept = append(kept, s)
			continue
		}
		// Partial overlap: keep the pieces outside the new write.
		if s.Address < newStart {
			head := make([]byte, newStart-s.Address)
			copy(head, s.Data[:newStart-s.Address])
			kept = append(kept, Segment{Address: s.Address, Data: head})
		}
		if s.End() > newEnd {
			tail := make([]byte, s.End()-newEnd)
			copy(tail, s.Data[newEnd-s.Address:])
			kept = append(kept, Segment{Address: newEnd, Data: tail})
		}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	kept = append(kept, Segment{Address: newStart, Data: cp})

	sort.Slice(kept, func(i, j int) bool { return kept[i].Address < kept[j].Address })

	// Coalesce touching runs.
	merged := kept[:0]
	for _, s := range kept {
		if n := len(merged); n > 0 && merged[n-1].End() == s.Address {
			merged[n-1].Data = append(merged[n-1].Data, s.Data...)
			continue
		}
		merged = append(merged, s)
	}
	img.segments = merged
}
