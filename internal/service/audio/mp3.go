package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

const id3HeaderSize = 10

var mp3ReplacedFrames = []string{"TIT2", "TPE1", "TALB", "TDRC", "TYER", "TRCK"}

type mp3Handler struct{}

func newMP3Handler() *mp3Handler {
	return &mp3Handler{}
}

func (h *mp3Handler) Format() string {
	return "MP3"
}

func (h *mp3Handler) SupportsPicture() bool {
	return true
}

func (h *mp3Handler) Sniff(header []byte) bool {
	if bytes.HasPrefix(header, []byte("ID3")) {
		return true
	}
	return len(header) >= 2 && isFrameSync(header)
}

func isFrameSync(b []byte) bool {
	return b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// id3v2TagSize returns the full length of the ID3v2 tag at the start of
// header, footer included, or 0 when there is none.
func id3v2TagSize(header []byte) (int64, error) {
	if len(header) < id3HeaderSize || !bytes.HasPrefix(header, []byte("ID3")) {
		return 0, nil
	}
	if header[3] < 2 || header[3] > 4 {
		return 0, fmt.Errorf("unsupported ID3v2 version 2.%d", header[3])
	}
	var size int64
	for _, b := range header[6:10] {
		if b >= 0x80 {
			return 0, errors.New("malformed ID3v2 size")
		}
		size = size<<7 | int64(b)
	}
	size += id3HeaderSize
	if header[5]&0x10 != 0 {
		size += id3HeaderSize
	}
	return size, nil
}

func (h *mp3Handler) WriteTags(src io.ReadSeeker, dst io.Writer, meta model.TrackMetadata, pic *Picture) error {
	total, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}

	header := make([]byte, id3HeaderSize)
	n, err := io.ReadFull(src, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read header: %w", err)
	}
	existing, err := id3v2TagSize(header[:n])
	if err != nil {
		return err
	}
	if existing+4 > total {
		return errors.New("truncated MP3: no audio after tag")
	}

	sync := make([]byte, 2)
	if _, err := src.Seek(existing, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(src, sync); err != nil {
		return fmt.Errorf("read frame header: %w", err)
	}
	if !isFrameSync(sync) {
		return errors.New("no MPEG frame after tag")
	}

	var t *id3v2.Tag
	if existing > 0 {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return err
		}
		t, err = id3v2.ParseReader(io.LimitReader(src, existing), id3v2.Options{Parse: true})
		if err != nil {
			return fmt.Errorf("parse ID3v2: %w", err)
		}
	} else {
		t = id3v2.NewEmptyTag()
	}

	t.SetVersion(4)
	t.SetDefaultEncoding(id3v2.EncodingUTF8)
	for _, id := range mp3ReplacedFrames {
		t.DeleteFrames(id)
	}
	if meta.Title != "" {
		t.SetTitle(meta.Title)
	}
	if meta.Artist != "" {
		t.SetArtist(meta.Artist)
	}
	if meta.Album != "" {
		t.SetAlbum(meta.Album)
	}
	if meta.Date != "" {
		t.AddTextFrame("TDRC", id3v2.EncodingUTF8, meta.Date)
	}
	if meta.TrackNumber > 0 {
		t.AddTextFrame("TRCK", id3v2.EncodingUTF8, strconv.Itoa(meta.TrackNumber))
	}
	if pic != nil {
		t.DeleteFrames("APIC")
		t.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    pic.MIME,
			PictureType: id3v2.PTFrontCover,
			Description: frontCoverDescription,
			Picture:     pic.Data,
		})
	}

	if _, err := t.WriteTo(dst); err != nil {
		return fmt.Errorf("write ID3v2: %w", err)
	}
	if _, err := src.Seek(existing, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	return nil
}

func (h *mp3Handler) ExtractDuration(r io.ReaderAt, size int64) (float64, error) {
	header := make([]byte, id3HeaderSize)
	if _, err := r.ReadAt(header, 0); err != nil {
		return 0, fmt.Errorf("read MP3 header: %w", err)
	}
	start, err := id3v2TagSize(header)
	if err != nil {
		return 0, err
	}
	audioSize := size - start
	if audioSize < 4 {
		return 0, errors.New("MP3 file too small")
	}

	buffer := make([]byte, 8192)
	n, err := r.ReadAt(buffer, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read MP3 frames: %w", err)
	}
	buffer = buffer[:n]
	if len(buffer) < 4 || !isFrameSync(buffer) {
		return 0, errors.New("not a valid MP3 stream")
	}

	if duration, err := h.durationFromXing(buffer); err == nil && duration > 0 {
		return duration, nil
	}
	if duration, err := h.durationFromFrames(r, start, audioSize); err == nil && duration > 0 {
		return duration, nil
	}

	bitrate := h.bitrate(buffer[:4])
	if bitrate == 0 {
		return 0, errors.New("could not determine bitrate")
	}
	return float64(audioSize*8) / float64(bitrate*1000), nil
}

func (h *mp3Handler) durationFromXing(buffer []byte) (float64, error) {
	header := buffer[:4]
	sampleRate := h.sampleRate(header)
	if sampleRate == 0 {
		return 0, errors.New("unknown sample rate")
	}
	for i := 4; i+18 <= len(buffer); i++ {
		var frames uint32
		switch string(buffer[i : i+4]) {
		case "Xing", "Info":
			if buffer[i+7]&0x01 == 0 {
				continue
			}
			frames = be32(buffer[i+8:])
		case "VBRI":
			frames = be32(buffer[i+14:])
		default:
			continue
		}
		if frames > 0 {
			return float64(frames) * float64(samplesPerFrame(header)) / float64(sampleRate), nil
		}
	}
	return 0, errors.New("no Xing/VBRI header found")
}

// durationFromFrames walks frame headers over the first 512 KiB and
// extrapolates to the whole stream.
func (h *mp3Handler) durationFromFrames(r io.ReaderAt, start, audioSize int64) (float64, error) {
	limit := audioSize
	if limit > 512*1024 {
		limit = 512 * 1024
	}

	var (
		frames     int
		pos        int64
		sampleRate int
		spf        int
	)
	header := make([]byte, 4)
	for pos+4 <= limit {
		if _, err := r.ReadAt(header, start+pos); err != nil {
			break
		}
		if !isFrameSync(header) {
			break
		}
		frameSize := h.frameSize(header)
		if frameSize <= 0 {
			break
		}
		if frames == 0 {
			sampleRate = h.sampleRate(header)
			spf = samplesPerFrame(header)
		}
		frames++
		pos += int64(frameSize)
	}

	if frames == 0 || sampleRate == 0 {
		return 0, errors.New("could not parse frames")
	}
	estimated := float64(frames)
	if pos < audioSize {
		estimated = float64(audioSize) / (float64(pos) / float64(frames))
	}
	return estimated * float64(spf) / float64(sampleRate), nil
}

func samplesPerFrame(header []byte) int {
	if (header[1]>>3)&0x03 == 3 {
		return 1152
	}
	return 576
}

func (h *mp3Handler) frameSize(header []byte) int {
	bitrate := h.bitrate(header)
	sampleRate := h.sampleRate(header)
	if bitrate == 0 || sampleRate == 0 {
		return 0
	}
	padding := int((header[2] >> 1) & 0x01)
	return (samplesPerFrame(header)/8)*bitrate*1000/sampleRate + padding
}

var mp3BitrateTable = [][]int{
	{0, 0, 0, 0, 0},
	{32, 32, 32, 32, 8},
	{64, 48, 40, 48, 16},
	{96, 56, 48, 56, 24},
	{128, 64, 56, 64, 32},
	{160, 80, 64, 80, 40},
	{192, 96, 80, 96, 48},
	{224, 112, 96, 112, 56},
	{256, 128, 112, 128, 64},
	{288, 160, 128, 160, 80},
	{320, 192, 160, 192, 96},
	{352, 224, 192, 224, 112},
	{384, 256, 224, 256, 128},
	{416, 320, 256, 320, 144},
	{448, 384, 320, 384, 160},
}

// bitrate only understands Layer III, in kbit/s.
func (h *mp3Handler) bitrate(header []byte) int {
	version := (header[1] >> 3) & 0x03
	layer := (header[1] >> 1) & 0x03
	idx := int((header[2] >> 4) & 0x0F)
	if version == 1 || layer != 1 || idx == 0 || idx >= len(mp3BitrateTable) {
		return 0
	}
	if version == 3 {
		return mp3BitrateTable[idx][2]
	}
	return mp3BitrateTable[idx][4]
}

var mp3SampleRateTable = [][]int{
	{44100, 22050, 11025},
	{48000, 24000, 12000},
	{32000, 16000, 8000},
}

func (h *mp3Handler) sampleRate(header []byte) int {
	idx := int((header[2] >> 2) & 0x03)
	if idx >= len(mp3SampleRateTable) {
		return 0
	}
	switch (header[1] >> 3) & 0x03 {
	case 3:
		return mp3SampleRateTable[idx][0]
	case 2:
		return mp3SampleRateTable[idx][1]
	case 0:
		return mp3SampleRateTable[idx][2]
	}
	return 0
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func getMP3Handler(ext string) FormatHandler {
	if ext == "MP3" || ext == "MPEG" {
		return newMP3Handler()
	}
	return nil
}

func getMP3HandlerByFileType(fileType tag.FileType) FormatHandler {
	if fileType == tag.MP3 {
		return newMP3Handler()
	}
	return nil
}
