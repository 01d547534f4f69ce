package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

type riffChunk struct {
	id       string
	listType string
	offset   int64
	size     uint32
}

func (c riffChunk) padded() int64 {
	return int64(c.size) + int64(c.size&1)
}

func (c riffChunk) isInfo() bool {
	return c.id == "LIST" && c.listType == "INFO"
}

type infoField struct {
	id    string
	value string
}

var wavReplacedFields = []string{"INAM", "IART", "IPRD", "ICRD", "ITRK", "IPRT"}

type wavHandler struct{}

func newWAVHandler() *wavHandler {
	return &wavHandler{}
}

func (h *wavHandler) Format() string {
	return "WAV"
}

// SupportsPicture is false: RIFF INFO has no picture field.
func (h *wavHandler) SupportsPicture() bool {
	return false
}

func (h *wavHandler) Sniff(header []byte) bool {
	return len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WAVE"
}

func walkRIFF(r io.ReadSeeker, size int64) ([]riffChunk, error) {
	buf := make([]byte, 12)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF WAVE file")
	}

	var (
		chunks          []riffChunk
		hasFmt, hasData bool
	)
	for pos := int64(12); pos+8 <= size; {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		c := riffChunk{
			id:     string(buf[0:4]),
			offset: pos + 8,
			size:   binary.LittleEndian.Uint32(buf[4:8]),
		}
		if c.offset+int64(c.size) > size {
			return nil, fmt.Errorf("truncated %q chunk", c.id)
		}
		if c.id == "LIST" && c.size >= 4 {
			if _, err := io.ReadFull(r, buf[:4]); err != nil {
				return nil, err
			}
			c.listType = string(buf[:4])
		}
		switch c.id {
		case "fmt ":
			hasFmt = true
		case "data":
			hasData = true
		}
		chunks = append(chunks, c)
		pos = c.offset + c.padded()
	}
	if !hasFmt || !hasData {
		return nil, errors.New("WAVE without fmt or data chunk")
	}
	return chunks, nil
}

func readInfo(r io.ReadSeeker, c riffChunk) ([]infoField, error) {
	body := make([]byte, c.size)
	if _, err := r.Seek(c.offset, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	var fields []infoField
	for pos := 4; pos+8 <= len(body); {
		id := string(body[pos : pos+4])
		n := int(binary.LittleEndian.Uint32(body[pos+4 : pos+8]))
		start := pos + 8
		if start+n > len(body) {
			break
		}
		value := string(bytes.TrimRight(body[start:start+n], "\x00"))
		fields = append(fields, infoField{id: id, value: value})
		pos = start + n + n&1
	}
	return fields, nil
}

func buildInfoChunk(fields []infoField) []byte {
	var body bytes.Buffer
	body.WriteString("INFO")
	for _, f := range fields {
		text := append([]byte(f.value), 0)
		body.WriteString(f.id)
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(text)))
		body.Write(text)
		if len(text)%2 == 1 {
			body.WriteByte(0)
		}
	}
	chunk := make([]byte, 8, 8+body.Len())
	copy(chunk, "LIST")
	binary.LittleEndian.PutUint32(chunk[4:8], uint32(body.Len()))
	return append(chunk, body.Bytes()...)
}

func (h *wavHandler) WriteTags(src io.ReadSeeker, dst io.Writer, meta model.TrackMetadata, _ *Picture) error {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	chunks, err := walkRIFF(src, size)
	if err != nil {
		return err
	}

	var fields []infoField
	for _, c := range chunks {
		if !c.isInfo() {
			continue
		}
		existing, err := readInfo(src, c)
		if err != nil {
			return fmt.Errorf("read INFO: %w", err)
		}
		for _, f := range existing {
			if !slices.Contains(wavReplacedFields, f.id) {
				fields = append(fields, f)
			}
		}
	}
	for _, f := range []infoField{
		{"INAM", meta.Title},
		{"IART", meta.Artist},
		{"IPRD", meta.Album},
		{"ICRD", meta.Date},
	} {
		if f.value != "" {
			fields = append(fields, f)
		}
	}
	if meta.TrackNumber > 0 {
		fields = append(fields, infoField{"ITRK", strconv.Itoa(meta.TrackNumber)})
	}
	info := buildInfoChunk(fields)

	riffSize := int64(4 + len(info))
	for _, c := range chunks {
		if !c.isInfo() {
			riffSize += 8 + c.padded()
		}
	}
	if riffSize > math.MaxUint32 {
		return errors.New("WAVE too large for RIFF")
	}

	header := make([]byte, 12)
	copy(header, "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(riffSize))
	copy(header[8:], "WAVE")
	if _, err := dst.Write(header); err != nil {
		return err
	}

	chunkHeader := make([]byte, 8)
	for _, c := range chunks {
		if c.isInfo() {
			continue
		}
		if c.id == "data" && info != nil {
			if _, err := dst.Write(info); err != nil {
				return err
			}
			info = nil
		}
		copy(chunkHeader, c.id)
		binary.LittleEndian.PutUint32(chunkHeader[4:8], c.size)
		if _, err := dst.Write(chunkHeader); err != nil {
			return err
		}
		if _, err := src.Seek(c.offset, io.SeekStart); err != nil {
			return err
		}
		if _, err := io.CopyN(dst, src, int64(c.size)); err != nil {
			return fmt.Errorf("copy %q chunk: %w", c.id, err)
		}
		if c.size&1 == 1 {
			if _, err := dst.Write([]byte{0}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *wavHandler) ReadTags(r io.ReadSeeker) (model.TrackMetadata, *Picture, error) {
	var meta model.TrackMetadata
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return meta, nil, err
	}
	chunks, err := walkRIFF(r, size)
	if err != nil {
		return meta, nil, err
	}
	for _, c := range chunks {
		if !c.isInfo() {
			continue
		}
		fields, err := readInfo(r, c)
		if err != nil {
			return meta, nil, err
		}
		for _, f := range fields {
			switch f.id {
			case "INAM":
				meta.Title = f.value
			case "IART":
				meta.Artist = f.value
			case "IPRD":
				meta.Album = f.value
			case "ICRD":
				meta.Date = f.value
			case "ITRK", "IPRT":
				meta.TrackNumber = parseTrack(f.value)
			}
		}
	}
	return meta, nil, nil
}

func (h *wavHandler) ExtractDuration(r io.ReaderAt, size int64) (float64, error) {
	rs := io.NewSectionReader(r, 0, size)
	chunks, err := walkRIFF(rs, size)
	if err != nil {
		return 0, err
	}
	var (
		byteRate uint32
		dataSize uint32
	)
	for _, c := range chunks {
		switch c.id {
		case "fmt ":
			if c.size < 16 {
				return 0, errors.New("short fmt chunk")
			}
			buf := make([]byte, 4)
			if _, err := r.ReadAt(buf, c.offset+8); err != nil {
				return 0, err
			}
			byteRate = binary.LittleEndian.Uint32(buf)
		case "data":
			dataSize = c.size
		}
	}
	if byteRate == 0 {
		return 0, errors.New("could not determine byte rate")
	}
	return float64(dataSize) / float64(byteRate), nil
}

func getWAVHandler(ext string) FormatHandler {
	if ext == "WAV" || ext == "WAVE" {
		return newWAVHandler()
	}
	return nil
}
