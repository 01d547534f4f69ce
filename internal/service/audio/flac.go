package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dhowden/tag"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

type flacHandler struct{}

func newFLACHandler() *flacHandler {
	return &flacHandler{}
}

func (h *flacHandler) Format() string {
	return "FLAC"
}

func (h *flacHandler) SupportsPicture() bool {
	return true
}

func (h *flacHandler) Sniff(header []byte) bool {
	return bytes.HasPrefix(header, []byte("fLaC"))
}

func (h *flacHandler) WriteTags(src io.ReadSeeker, dst io.Writer, meta model.TrackMetadata, pic *Picture) error {
	f, err := flac.ParseBytes(src)
	if err != nil {
		return fmt.Errorf("parse FLAC: %w", err)
	}
	if len(f.Meta) == 0 || f.Meta[0].Type != flac.StreamInfo {
		return errors.New("FLAC without STREAMINFO")
	}

	var (
		vc          *flacvorbis.MetaDataBlockVorbisComment
		vorbisIndex = -1
	)
	for i, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			vc, err = flacvorbis.ParseFromMetaDataBlock(*block)
			if err != nil {
				return fmt.Errorf("parse vorbis comment: %w", err)
			}
			vorbisIndex = i
			break
		}
	}
	if vc == nil {
		vc = flacvorbis.New()
	}
	if err := applyVorbisFields(vc, meta); err != nil {
		return fmt.Errorf("set vorbis comment: %w", err)
	}

	marshaled := vc.Marshal()
	if vorbisIndex >= 0 {
		f.Meta[vorbisIndex] = &marshaled
	} else {
		f.Meta = append(f.Meta, &marshaled)
	}

	if pic != nil {
		kept := f.Meta[:0]
		for _, block := range f.Meta {
			if block.Type != flac.Picture {
				kept = append(kept, block)
			}
		}
		picBlock := pictureBlock(pic).Marshal()
		f.Meta = append(kept, &picBlock)
	}

	if _, err := dst.Write(f.Marshal()); err != nil {
		return fmt.Errorf("write FLAC: %w", err)
	}
	return nil
}

func (h *flacHandler) ExtractDuration(r io.ReaderAt, size int64) (float64, error) {
	buffer := make([]byte, 26)
	if _, err := r.ReadAt(buffer, 0); err != nil {
		return 0, fmt.Errorf("read FLAC header: %w", err)
	}
	if string(buffer[0:4]) != "fLaC" {
		return 0, errors.New("not a valid FLAC file")
	}

	blockHeader := buffer[4:8]
	blockType := blockHeader[0] & 0x7F
	blockSize := uint32(blockHeader[1])<<16 | uint32(blockHeader[2])<<8 | uint32(blockHeader[3])
	if blockType != 0 {
		return 0, errors.New("STREAMINFO block not found as first block")
	}
	if blockSize < 18 {
		return 0, errors.New("STREAMINFO block size too small")
	}

	streamInfo := buffer[8:26]
	sampleRate := uint32(streamInfo[10])<<12 | uint32(streamInfo[11])<<4 | uint32(streamInfo[12])>>4
	channels := int((streamInfo[12]&0x0E)>>1) + 1
	bitsPerSample := int((streamInfo[12]&0x01)<<4|(streamInfo[13]&0xF0)>>4) + 1
	totalSamples := uint64(streamInfo[13]&0x0F)<<32 | uint64(streamInfo[14])<<24 |
		uint64(streamInfo[15])<<16 | uint64(streamInfo[16])<<8 | uint64(streamInfo[17])

	if sampleRate == 0 {
		return 0, errors.New("could not determine sample rate")
	}
	if totalSamples > 0 {
		return float64(totalSamples) / float64(sampleRate), nil
	}

	// Unknown sample count: assume uncompressed size as an upper bound.
	return float64(size*8) / float64(int(sampleRate)*channels*bitsPerSample), nil
}

func getFLACHandler(ext string) FormatHandler {
	if ext == "FLAC" {
		return newFLACHandler()
	}
	return nil
}

func getFLACHandlerByFileType(fileType tag.FileType) FormatHandler {
	if fileType == tag.FLAC {
		return newFLACHandler()
	}
	return nil
}
