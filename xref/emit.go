package xref

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// Section is a set of entries to be written as one cross-reference section.
type Section struct {
	Entries map[int]Entry
}

func NewSection() *Section { return &Section{Entries: make(map[int]Entry)} }

func (s *Section) InUse(num, gen int, offset int64) {
	s.Entries[num] = Entry{Type: EntryInUse, Offset: offset, Gen: gen}
}

func (s *Section) Compressed(num, stream, index int) {
	s.Entries[num] = Entry{Type: EntryCompressed, Stream: stream, Index: index}
}

// Free marks num as free. gen is the generation a future reuse must carry.
func (s *Section) Free(num, gen int) {
	if gen > 65535 {
		gen = 65535
	}
	s.Entries[num] = Entry{Type: EntryFree, Gen: gen}
}

// FillGaps marks every number below size without an entry as free.
func (s *Section) FillGaps(size int) {
	for num := 1; num < size; num++ {
		if _, ok := s.Entries[num]; !ok {
			s.Entries[num] = Entry{Type: EntryFree}
		}
	}
}

// LinkFreeList threads the free entries into a chain starting at object 0
// and ending back at object 0.
func (s *Section) LinkFreeList() {
	var free []int
	for num, e := range s.Entries {
		if e.Type == EntryFree && num != 0 {
			free = append(free, num)
		}
	}
	sort.Ints(free)
	head := Entry{Type: EntryFree, Gen: 65535}
	if len(free) > 0 {
		head.Offset = int64(free[0])
	}
	s.Entries[0] = head
	for i, num := range free {
		e := s.Entries[num]
		e.Offset = 0
		if i+1 < len(free) {
			e.Offset = int64(free[i+1])
		}
		s.Entries[num] = e
	}
}

// Numbers returns the entry numbers in ascending order.
func (s *Section) Numbers() []int {
	out := make([]int, 0, len(s.Entries))
	for num := range s.Entries {
		out = append(out, num)
	}
	sort.Ints(out)
	return out
}

// Subsections groups the entry numbers into runs of consecutive numbers,
// returned as (first, count) pairs.
func (s *Section) Subsections() [][2]int {
	var out [][2]int
	for _, num := range s.Numbers() {
		if n := len(out); n > 0 && out[n-1][0]+out[n-1][1] == num {
			out[n-1][1]++
			continue
		}
		out = append(out, [2]int{num, 1})
	}
	return out
}

// WriteTable writes a classic "xref" section with fixed 20-byte entries.
// The trailer is written by the caller.
func (s *Section) WriteTable(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("xref\n")
	for _, sub := range s.Subsections() {
		fmt.Fprintf(bw, "%d %d\n", sub[0], sub[1])
		for num := sub[0]; num < sub[0]+sub[1]; num++ {
			e := s.Entries[num]
			switch e.Type {
			case EntryInUse:
				fmt.Fprintf(bw, "%010d %05d n\r\n", e.Offset, e.Gen)
			case EntryFree:
				fmt.Fprintf(bw, "%010d %05d f\r\n", e.Offset, e.Gen)
			default:
				return fmt.Errorf("object %d is compressed and cannot appear in an xref table", num)
			}
		}
	}
	return bw.Flush()
}

// StreamRows encodes the entries as xref stream rows. It returns the /W
// widths, the /Index array and the unfiltered row data.
func (s *Section) StreamRows() (w [3]int, index []int, data []byte) {
	var max2, max3 int64
	for _, e := range s.Entries {
		f2, f3 := e.fields()
		if f2 > max2 {
			max2 = f2
		}
		if f3 > max3 {
			max3 = f3
		}
	}
	w = [3]int{1, byteWidth(max2), byteWidth(max3)}
	for _, sub := range s.Subsections() {
		index = append(index, sub[0], sub[1])
		for num := sub[0]; num < sub[0]+sub[1]; num++ {
			e := s.Entries[num]
			f2, f3 := e.fields()
			data = append(data, byte(e.streamType()))
			data = appendField(data, f2, w[1])
			data = appendField(data, f3, w[2])
		}
	}
	return w, index, data
}

func (e Entry) streamType() int {
	switch e.Type {
	case EntryInUse:
		return 1
	case EntryCompressed:
		return 2
	}
	return 0
}

func (e Entry) fields() (int64, int64) {
	if e.Type == EntryCompressed {
		return int64(e.Stream), int64(e.Index)
	}
	return e.Offset, int64(e.Gen)
}

func byteWidth(v int64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

func appendField(dst []byte, v int64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}
