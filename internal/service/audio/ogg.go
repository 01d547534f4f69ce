package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dhowden/tag"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

const (
	codecVorbis = "vorbis"
	codecOpus   = "opus"

	oggTailWindow = 64 * 1024
)

var (
	vorbisIDPrefix      = []byte("\x01vorbis")
	vorbisCommentPrefix = []byte("\x03vorbis")
	opusIDPrefix        = []byte("OpusHead")
	opusCommentPrefix   = []byte("OpusTags")
)

type oggHandler struct{}

func newOGGHandler() *oggHandler {
	return &oggHandler{}
}

func (h *oggHandler) Format() string {
	return "OGG"
}

func (h *oggHandler) SupportsPicture() bool {
	return true
}

func (h *oggHandler) Sniff(header []byte) bool {
	return bytes.HasPrefix(header, oggCapture)
}

// oggHeaders holds the header packets of a logical Vorbis or Opus stream.
type oggHeaders struct {
	codec   string
	serial  uint32
	idPage  *oggPage
	packets [][]byte
	pages   int
}

func (h *oggHeaders) commentPrefix() []byte {
	if h.codec == codecOpus {
		return opusCommentPrefix
	}
	return vorbisCommentPrefix
}

func (h *oggHeaders) commentBody() ([]byte, error) {
	prefix := h.commentPrefix()
	if !bytes.HasPrefix(h.packets[1], prefix) {
		return nil, errors.New("second header packet is not a comment header")
	}
	return h.packets[1][len(prefix):], nil
}

func detectOggCodec(id []byte) (string, int, error) {
	switch {
	case bytes.HasPrefix(id, vorbisIDPrefix):
		return codecVorbis, 3, nil
	case bytes.HasPrefix(id, opusIDPrefix):
		return codecOpus, 2, nil
	}
	return "", 0, errors.New("unsupported Ogg codec")
}

func readOggHeaders(r io.Reader) (*oggHeaders, error) {
	first, err := readOggPage(r)
	if err != nil {
		return nil, err
	}
	if first.Flags&oggFlagBOS == 0 {
		return nil, errors.New("first page is not a stream start")
	}

	hdr := &oggHeaders{serial: first.Serial, idPage: first, pages: 1}
	var partial []byte
	collect := func(p *oggPage) {
		off := 0
		for _, s := range p.Segments {
			partial = append(partial, p.Data[off:off+int(s)]...)
			off += int(s)
			if s < 255 {
				hdr.packets = append(hdr.packets, partial)
				partial = nil
			}
		}
	}

	collect(first)
	if len(hdr.packets) != 1 || partial != nil {
		return nil, errors.New("identification header must fill the first page")
	}
	codec, need, err := detectOggCodec(hdr.packets[0])
	if err != nil {
		return nil, err
	}
	hdr.codec = codec

	for len(hdr.packets) < need {
		p, err := readOggPage(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("truncated Ogg headers")
			}
			return nil, err
		}
		if p.Serial != hdr.serial {
			return nil, errors.New("multiplexed Ogg streams are not supported")
		}
		collect(p)
		hdr.pages++
	}
	if len(hdr.packets) != need || partial != nil {
		return nil, errors.New("header packets do not end on a page boundary")
	}
	return hdr, nil
}

func (h *oggHandler) WriteTags(src io.ReadSeeker, dst io.Writer, meta model.TrackMetadata, pic *Picture) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr, err := readOggHeaders(src)
	if err != nil {
		return fmt.Errorf("read Ogg headers: %w", err)
	}
	body, err := hdr.commentBody()
	if err != nil {
		return err
	}
	vc, err := parseVorbisComment(body)
	if err != nil {
		return fmt.Errorf("parse comment header: %w", err)
	}
	if err := applyVorbisFields(vc, meta); err != nil {
		return fmt.Errorf("set comment header: %w", err)
	}
	if pic != nil {
		vc.Comments = dropFields(vc.Comments, fieldMetadataBlockPicture, "COVERART", "COVERARTMIME")
		vc.Comments = append(vc.Comments, pictureComment(pic))
	}

	comment := append([]byte{}, hdr.commentPrefix()...)
	comment = append(comment, vc.Marshal().Data...)
	if hdr.codec == codecVorbis {
		comment = append(comment, 0x01)
	}
	packets := append([][]byte{comment}, hdr.packets[2:]...)
	pages := paginate(packets, hdr.serial, hdr.idPage.Sequence+1, 0)

	if _, err := dst.Write(hdr.idPage.marshal()); err != nil {
		return err
	}
	for _, p := range pages {
		if _, err := dst.Write(p.marshal()); err != nil {
			return err
		}
	}

	delta := int64(1+len(pages)) - int64(hdr.pages)
	for {
		p, err := readOggPage(src)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("copy audio pages: %w", err)
		}
		if p.Serial != hdr.serial {
			return errors.New("multiplexed Ogg streams are not supported")
		}
		p.Sequence = uint32(int64(p.Sequence) + delta)
		if _, err := dst.Write(p.marshal()); err != nil {
			return err
		}
	}
}

func (h *oggHandler) ReadTags(r io.ReadSeeker) (model.TrackMetadata, *Picture, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return model.TrackMetadata{}, nil, err
	}
	hdr, err := readOggHeaders(r)
	if err != nil {
		return model.TrackMetadata{}, nil, err
	}
	body, err := hdr.commentBody()
	if err != nil {
		return model.TrackMetadata{}, nil, err
	}
	vc, err := parseVorbisComment(body)
	if err != nil {
		return model.TrackMetadata{}, nil, err
	}
	meta, pic := trackFromComments(vc.Comments)
	return meta, pic, nil
}

// ExtractDuration reads the final granule position of the stream.
func (h *oggHandler) ExtractDuration(r io.ReaderAt, size int64) (float64, error) {
	first, err := readOggPage(io.NewSectionReader(r, 0, size))
	if err != nil {
		return 0, fmt.Errorf("read Ogg header: %w", err)
	}
	codec, _, err := detectOggCodec(first.Data)
	if err != nil {
		return 0, err
	}

	var (
		sampleRate float64
		preSkip    uint64
	)
	switch codec {
	case codecVorbis:
		if len(first.Data) < 16 {
			return 0, errors.New("short Vorbis identification header")
		}
		sampleRate = float64(binary.LittleEndian.Uint32(first.Data[12:16]))
	case codecOpus:
		if len(first.Data) < 12 {
			return 0, errors.New("short Opus identification header")
		}
		sampleRate = 48000
		preSkip = uint64(binary.LittleEndian.Uint16(first.Data[10:12]))
	}
	if sampleRate == 0 {
		return 0, errors.New("could not determine sample rate")
	}

	start := size - oggTailWindow
	if start < 0 {
		start = 0
	}
	tail := make([]byte, size-start)
	if _, err := r.ReadAt(tail, start); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read Ogg tail: %w", err)
	}

	for i := bytes.LastIndex(tail, oggCapture); i >= 0; i = bytes.LastIndex(tail[:i], oggCapture) {
		p, err := readOggPage(bytes.NewReader(tail[i:]))
		if err != nil || p.Serial != first.Serial || p.Granule == oggNoGranule {
			continue
		}
		if p.Granule <= preSkip {
			return 0, nil
		}
		return float64(p.Granule-preSkip) / sampleRate, nil
	}
	return 0, errors.New("could not determine Ogg duration")
}

func getOGGHandler(ext string) FormatHandler {
	if ext == "OGG" || ext == "OGA" || ext == "OPUS" {
		return newOGGHandler()
	}
	return nil
}

func getOGGHandlerByFileType(fileType tag.FileType) FormatHandler {
	if fileType == tag.OGG {
		return newOGGHandler()
	}
	return nil
}
