package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	oggHeaderSize  = 27
	oggMaxSegments = 255

	oggFlagContinued = 0x01
	oggFlagBOS       = 0x02

	// granule position of a page on which no packet completes
	oggNoGranule = ^uint64(0)
)

var oggCapture = []byte("OggS")

type oggPage struct {
	Flags    byte
	Granule  uint64
	Serial   uint32
	Sequence uint32
	Segments []byte
	Data     []byte
}

var oggCRCTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

func oggCRC(b []byte) uint32 {
	var crc uint32
	for _, c := range b {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^c]
	}
	return crc
}

// readOggPage reads one page and verifies its checksum. io.EOF is returned
// only when r is exhausted on a page boundary.
func readOggPage(r io.Reader) (*oggPage, error) {
	header := make([]byte, oggHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read page header: %w", err)
	}
	if string(header[:4]) != string(oggCapture) {
		return nil, errors.New("missing OggS capture pattern")
	}
	if header[4] != 0 {
		return nil, fmt.Errorf("unsupported Ogg version %d", header[4])
	}

	segments := make([]byte, header[26])
	if _, err := io.ReadFull(r, segments); err != nil {
		return nil, fmt.Errorf("read segment table: %w", err)
	}
	var dataLen int
	for _, s := range segments {
		dataLen += int(s)
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read page body: %w", err)
	}

	p := &oggPage{
		Flags:    header[5],
		Granule:  binary.LittleEndian.Uint64(header[6:14]),
		Serial:   binary.LittleEndian.Uint32(header[14:18]),
		Sequence: binary.LittleEndian.Uint32(header[18:22]),
		Segments: segments,
		Data:     data,
	}
	if want := binary.LittleEndian.Uint32(header[22:26]); p.checksum() != want {
		return nil, fmt.Errorf("page %d: checksum mismatch", p.Sequence)
	}
	return p, nil
}

func (p *oggPage) header() []byte {
	b := make([]byte, oggHeaderSize+len(p.Segments))
	copy(b, oggCapture)
	b[5] = p.Flags
	binary.LittleEndian.PutUint64(b[6:14], p.Granule)
	binary.LittleEndian.PutUint32(b[14:18], p.Serial)
	binary.LittleEndian.PutUint32(b[18:22], p.Sequence)
	b[26] = byte(len(p.Segments))
	copy(b[oggHeaderSize:], p.Segments)
	return b
}

func (p *oggPage) checksum() uint32 {
	crc := p.header()
	crc = append(crc, p.Data...)
	return oggCRC(crc)
}

func (p *oggPage) marshal() []byte {
	b := p.header()
	b = append(b, p.Data...)
	binary.LittleEndian.PutUint32(b[22:26], oggCRC(b))
	return b
}

// paginate lays packets out over as few pages as lacing allows, starting a
// fresh page for the first packet.
func paginate(packets [][]byte, serial, sequence uint32, granule uint64) []*oggPage {
	var (
		pages []*oggPage
		cur   = &oggPage{Serial: serial, Sequence: sequence, Granule: oggNoGranule}
	)
	flush := func(continued bool) {
		pages = append(pages, cur)
		sequence++
		cur = &oggPage{Serial: serial, Sequence: sequence, Granule: oggNoGranule}
		if continued {
			cur.Flags = oggFlagContinued
		}
	}

	for _, packet := range packets {
		rest := packet
		for started := false; ; started = true {
			if len(cur.Segments) == oggMaxSegments {
				flush(started)
			}
			n := len(rest)
			if n > 255 {
				n = 255
			}
			cur.Segments = append(cur.Segments, byte(n))
			cur.Data = append(cur.Data, rest[:n]...)
			rest = rest[n:]
			if n < 255 {
				break
			}
		}
		cur.Granule = granule
	}
	if len(cur.Segments) > 0 {
		pages = append(pages, cur)
	}
	return pages
}
