package audio

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
)

// Ogg streams carry cover art as a base64 FLAC picture block.
const fieldMetadataBlockPicture = "METADATA_BLOCK_PICTURE"

var vorbisReplacedFields = []string{
	flacvorbis.FIELD_TITLE,
	flacvorbis.FIELD_ARTIST,
	flacvorbis.FIELD_ALBUM,
	flacvorbis.FIELD_DATE,
	flacvorbis.FIELD_TRACKNUMBER,
}

func hasField(comment, field string) bool {
	return len(comment) > len(field) &&
		comment[len(field)] == '=' &&
		strings.EqualFold(comment[:len(field)], field)
}

func dropFields(comments []string, fields ...string) []string {
	kept := comments[:0:0]
	for _, c := range comments {
		drop := false
		for _, f := range fields {
			if hasField(c, f) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, c)
		}
	}
	return kept
}

func applyVorbisFields(vc *flacvorbis.MetaDataBlockVorbisComment, meta model.TrackMetadata) error {
	vc.Comments = dropFields(vc.Comments, vorbisReplacedFields...)
	fields := []struct{ key, value string }{
		{flacvorbis.FIELD_TITLE, meta.Title},
		{flacvorbis.FIELD_ARTIST, meta.Artist},
		{flacvorbis.FIELD_ALBUM, meta.Album},
		{flacvorbis.FIELD_DATE, meta.Date},
	}
	if meta.TrackNumber > 0 {
		fields = append(fields, struct{ key, value string }{flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(meta.TrackNumber)})
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := vc.Add(f.key, f.value); err != nil {
			return err
		}
	}
	return nil
}

// pictureBlock builds a front-cover picture block. Images the decoder cannot
// read still get embedded, just without dimensions.
func pictureBlock(pic *Picture) *flacpicture.MetadataBlockPicture {
	p, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, frontCoverDescription, pic.Data, pic.MIME)
	if err == nil {
		return p
	}
	return &flacpicture.MetadataBlockPicture{
		PictureType: flacpicture.PictureTypeFrontCover,
		MIME:        pic.MIME,
		Description: frontCoverDescription,
		ImageData:   pic.Data,
	}
}

func pictureComment(pic *Picture) string {
	block := pictureBlock(pic).Marshal()
	return fieldMetadataBlockPicture + "=" + base64.StdEncoding.EncodeToString(block.Data)
}

func parseVorbisComment(body []byte) (*flacvorbis.MetaDataBlockVorbisComment, error) {
	return flacvorbis.ParseFromMetaDataBlock(flac.MetaDataBlock{Type: flac.VorbisComment, Data: body})
}

// trackFromComments maps Vorbis comment fields back to track metadata.
func trackFromComments(comments []string) (model.TrackMetadata, *Picture) {
	var (
		meta model.TrackMetadata
		pic  *Picture
	)
	for _, c := range comments {
		key, value, ok := strings.Cut(c, "=")
		if !ok {
			continue
		}
		switch strings.ToUpper(key) {
		case flacvorbis.FIELD_TITLE:
			meta.Title = value
		case flacvorbis.FIELD_ARTIST:
			meta.Artist = value
		case flacvorbis.FIELD_ALBUM:
			meta.Album = value
		case flacvorbis.FIELD_DATE:
			meta.Date = value
		case flacvorbis.FIELD_TRACKNUMBER:
			meta.TrackNumber = parseTrack(value)
		case fieldMetadataBlockPicture:
			if pic != nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				continue
			}
			p, err := flacpicture.ParseFromMetaDataBlock(flac.MetaDataBlock{Type: flac.Picture, Data: data})
			if err == nil {
				pic = &Picture{MIME: p.MIME, Data: p.ImageData}
			}
		}
	}
	return meta, pic
}

func parseTrack(s string) int {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
