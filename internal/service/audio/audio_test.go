package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"

	"github.com/iamvkosarev/archive-relay-bot/internal/model"
	"github.com/iamvkosarev/archive-relay-bot/internal/staging"
)

const testSerial = 0x1234abcd

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func noise(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// MPEG-1 Layer III, 128 kbit/s, 44.1 kHz: 417-byte frames.
func mp3Frames(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		frame := make([]byte, 417)
		copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
		for j := 4; j < len(frame); j++ {
			frame[j] = byte(i + j)
		}
		buf.Write(frame)
	}
	return buf.Bytes()
}

func flacStream(sampleRate uint32, totalSamples uint64, frames []byte) []byte {
	info := make([]byte, 34)
	binary.BigEndian.PutUint16(info[0:2], 4096)
	binary.BigEndian.PutUint16(info[2:4], 4096)
	packed := uint64(sampleRate)<<44 | uint64(2-1)<<41 | uint64(16-1)<<36 | totalSamples
	binary.BigEndian.PutUint64(info[10:18], packed)

	var buf bytes.Buffer
	buf.WriteString("fLaC")
	buf.Write([]byte{0x80, 0, 0, 34})
	buf.Write(info)
	buf.Write(frames)
	return buf.Bytes()
}

type oggFixture struct {
	data       []byte
	audioPages [][]byte
}

func vorbisStream(t *testing.T, sampleRate uint32, lastGranule uint64) oggFixture {
	t.Helper()

	id := make([]byte, 30)
	copy(id, vorbisIDPrefix)
	id[11] = 2
	binary.LittleEndian.PutUint32(id[12:16], sampleRate)
	id[28] = 0xB8
	id[29] = 0x01

	vendor := "test vendor"
	comment := append([]byte{}, vorbisCommentPrefix...)
	comment = binary.LittleEndian.AppendUint32(comment, uint32(len(vendor)))
	comment = append(comment, vendor...)
	comment = binary.LittleEndian.AppendUint32(comment, 1)
	entry := "ENCODER=fixture"
	comment = binary.LittleEndian.AppendUint32(comment, uint32(len(entry)))
	comment = append(comment, entry...)
	comment = append(comment, 0x01)

	setup := append([]byte("\x05vorbis"), noise(600, 1)...)
	return oggStream(id, [][]byte{comment, setup}, lastGranule)
}

// opusStream is a stereo Opus stream with a 312-sample pre-skip.
func opusStream(lastGranule uint64) oggFixture {
	id := make([]byte, 19)
	copy(id, opusIDPrefix)
	id[8] = 1
	id[9] = 2
	binary.LittleEndian.PutUint16(id[10:12], 312)
	binary.LittleEndian.PutUint32(id[12:16], 44100)

	vendor := "test opus"
	comment := append([]byte{}, opusCommentPrefix...)
	comment = binary.LittleEndian.AppendUint32(comment, uint32(len(vendor)))
	comment = append(comment, vendor...)
	comment = binary.LittleEndian.AppendUint32(comment, 1)
	entry := "TITLE=stale"
	comment = binary.LittleEndian.AppendUint32(comment, uint32(len(entry)))
	comment = append(comment, entry...)

	return oggStream(id, [][]byte{comment}, lastGranule)
}

// oggStream lays out an identification page, the remaining header packets
// and four audio pages ending at lastGranule.
func oggStream(id []byte, headers [][]byte, lastGranule uint64) oggFixture {
	var (
		buf   bytes.Buffer
		fx    oggFixture
		pages []*oggPage
	)
	first := paginate([][]byte{id}, testSerial, 0, 0)
	first[0].Flags |= oggFlagBOS
	pages = append(pages, first...)
	pages = append(pages, paginate(headers, testSerial, 1, 0)...)

	seq := uint32(len(pages))
	for i := 0; i < 4; i++ {
		granule := lastGranule / 4 * uint64(i+1)
		if i == 3 {
			granule = lastGranule
		}
		audio := paginate([][]byte{noise(700+i*100, int64(i+10))}, testSerial, seq, granule)
		if i == 3 {
			audio[len(audio)-1].Flags |= 0x04
		}
		for _, p := range audio {
			fx.audioPages = append(fx.audioPages, p.Data)
		}
		pages = append(pages, audio...)
		seq += uint32(len(audio))
	}
	for _, p := range pages {
		buf.Write(p.marshal())
	}
	fx.data = buf.Bytes()
	return fx
}

func wavStream(extra ...[]byte) ([]byte, []byte) {
	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], 1)
	binary.LittleEndian.PutUint16(fmtChunk[2:4], 1)
	binary.LittleEndian.PutUint32(fmtChunk[4:8], 8000)
	binary.LittleEndian.PutUint32(fmtChunk[8:12], 8000)
	binary.LittleEndian.PutUint16(fmtChunk[12:14], 1)
	binary.LittleEndian.PutUint16(fmtChunk[14:16], 8)
	data := noise(16000, 7)

	var body bytes.Buffer
	body.WriteString("WAVE")
	writeChunk := func(id string, b []byte) {
		body.WriteString(id)
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(b)))
		body.Write(b)
		if len(b)%2 == 1 {
			body.WriteByte(0)
		}
	}
	writeChunk("fmt ", fmtChunk)
	writeChunk("junk", []byte{1, 2, 3})
	for _, e := range extra {
		body.Write(e)
	}
	writeChunk("data", data)

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes(), data
}

func testTrack() model.TrackMetadata {
	return model.TrackMetadata{
		Title:       "Scarlet Begonias",
		Artist:      "Grateful Dead",
		Album:       "Live at Cornell",
		Date:        "1977-05-08",
		TrackNumber: 7,
	}
}

func TestEmbedRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		data      func(t *testing.T) []byte
		container string
	}{
		{"mp3 without tag", "07 Scarlet.mp3", func(*testing.T) []byte { return mp3Frames(20) }, "MP3"},
		{"flac", "07 Scarlet.flac", func(*testing.T) []byte { return flacStream(44100, 88200, noise(2048, 3)) }, "FLAC"},
		{"ogg vorbis", "07 Scarlet.ogg", func(t *testing.T) []byte { return vorbisStream(t, 44100, 88200).data }, "OGG"},
		{"ogg opus", "07 Scarlet.opus", func(*testing.T) []byte { return opusStream(96312).data }, "OGG"},
	}

	tagger := NewTagger()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cover := pngBytes(t)
			asset := staging.NewMemoryAsset(tt.file, tt.data(t))
			res := tagger.Embed(context.Background(), asset, testTrack(), staging.NewMemoryAsset("cover.png", cover))
			if res.Warning != nil {
				t.Fatalf("Embed warning: %v", res.Warning)
			}
			if !res.Tagged || !res.PictureEmbedded || res.Container != tt.container {
				t.Fatalf("Embed result = %+v", res)
			}

			meta, pic, err := tagger.ReadTags(asset)
			if err != nil {
				t.Fatalf("ReadTags: %v", err)
			}
			if meta != testTrack() {
				t.Errorf("ReadTags meta = %+v, want %+v", meta, testTrack())
			}
			if pic == nil {
				t.Fatal("ReadTags picture is nil")
			}
			if pic.MIME != mimePNG {
				t.Errorf("picture MIME = %q, want %q", pic.MIME, mimePNG)
			}
			if !bytes.Equal(pic.Data, cover) {
				t.Error("picture bytes differ from cover")
			}
		})
	}
}

func TestEmbedReplacesExistingTags(t *testing.T) {
	tagger := NewTagger()
	asset := staging.NewMemoryAsset("a.flac", flacStream(44100, 44100, noise(512, 4)))

	first := testTrack()
	first.Title = "Old Title"
	if res := tagger.Embed(context.Background(), asset, first, staging.NewMemoryAsset("c.jpg", jpegBytes(t))); !res.Tagged {
		t.Fatalf("first Embed: %v", res.Warning)
	}
	cover := pngBytes(t)
	if res := tagger.Embed(context.Background(), asset, testTrack(), staging.NewMemoryAsset("c.png", cover)); !res.Tagged {
		t.Fatalf("second Embed: %v", res.Warning)
	}

	meta, pic, err := tagger.ReadTags(asset)
	if err != nil {
		t.Fatalf("ReadTags: %v", err)
	}
	if meta.Title != "Scarlet Begonias" {
		t.Errorf("Title = %q", meta.Title)
	}
	if pic == nil || pic.MIME != mimePNG || !bytes.Equal(pic.Data, cover) {
		t.Error("cover was not replaced")
	}

	data, _ := asset.Bytes()
	if n := bytes.Count(data, []byte("TITLE=")); n != 1 {
		t.Errorf("found %d TITLE fields, want 1", n)
	}
}

func TestEmbedReplacesExistingID3(t *testing.T) {
	tagger := NewTagger()
	for _, version := range []byte{3, 4} {
		t.Run(fmt.Sprintf("v2.%d", version), func(t *testing.T) {
			old := id3v2.NewEmptyTag()
			old.SetVersion(version)
			old.SetDefaultEncoding(id3v2.EncodingISO)
			old.SetTitle("Old Title")
			old.SetArtist("Old Artist")
			old.SetGenre("Rock")
			if version == 3 {
				old.AddTextFrame("TYER", id3v2.EncodingISO, "1970")
			} else {
				old.AddTextFrame("TDRC", id3v2.EncodingISO, "1970")
			}
			old.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingISO,
				MimeType:    mimeJPEG,
				PictureType: id3v2.PTFrontCover,
				Description: "old",
				Picture:     jpegBytes(t),
			})
			var buf bytes.Buffer
			if _, err := old.WriteTo(&buf); err != nil {
				t.Fatalf("write old tag: %v", err)
			}
			audio := mp3Frames(12)
			buf.Write(audio)

			asset := staging.NewMemoryAsset("x.mp3", buf.Bytes())
			cover := pngBytes(t)
			if res := tagger.Embed(context.Background(), asset, testTrack(), staging.NewMemoryAsset("c.png", cover)); !res.Tagged {
				t.Fatalf("Embed: %v", res.Warning)
			}

			out, _ := asset.Bytes()
			size, err := id3v2TagSize(out)
			if err != nil || size == 0 {
				t.Fatalf("id3v2TagSize = %d, %v", size, err)
			}
			if !bytes.Equal(out[size:], audio) {
				t.Error("MPEG frames changed")
			}

			parsed, err := id3v2.ParseReader(bytes.NewReader(out), id3v2.Options{Parse: true})
			if err != nil {
				t.Fatalf("parse rewritten tag: %v", err)
			}
			if parsed.Version() != 4 {
				t.Errorf("version = %d, want 4", parsed.Version())
			}
			if n := len(parsed.GetFrames("APIC")); n != 1 {
				t.Errorf("found %d APIC frames, want 1", n)
			}
			if n := len(parsed.GetFrames("TYER")); n != 0 {
				t.Error("stale TYER frame kept")
			}
			if parsed.Title() != "Scarlet Begonias" || parsed.Artist() != "Grateful Dead" {
				t.Errorf("title/artist = %q/%q", parsed.Title(), parsed.Artist())
			}
			if parsed.Genre() != "Rock" {
				t.Errorf("unrelated frame lost, genre = %q", parsed.Genre())
			}

			meta, pic, err := tagger.ReadTags(asset)
			if err != nil {
				t.Fatalf("ReadTags: %v", err)
			}
			if meta != testTrack() {
				t.Errorf("ReadTags meta = %+v, want %+v", meta, testTrack())
			}
			if pic == nil || !bytes.Equal(pic.Data, cover) {
				t.Error("cover was not replaced")
			}
		})
	}
}

func TestEmbedPreservesAudioPayload(t *testing.T) {
	tagger := NewTagger()
	cover := staging.NewMemoryAsset("cover.jpg", jpegBytes(t))

	t.Run("mp3", func(t *testing.T) {
		audio := mp3Frames(12)
		asset := staging.NewMemoryAsset("x.mp3", audio)
		if res := tagger.Embed(context.Background(), asset, testTrack(), cover); !res.Tagged {
			t.Fatalf("Embed: %v", res.Warning)
		}
		out, _ := asset.Bytes()
		size, err := id3v2TagSize(out)
		if err != nil || size == 0 {
			t.Fatalf("id3v2TagSize = %d, %v", size, err)
		}
		if !bytes.Equal(out[size:], audio) {
			t.Error("MPEG frames changed")
		}
	})

	t.Run("flac", func(t *testing.T) {
		frames := noise(4096, 5)
		asset := staging.NewMemoryAsset("x.flac", flacStream(48000, 96000, frames))
		if res := tagger.Embed(context.Background(), asset, testTrack(), cover); !res.Tagged {
			t.Fatalf("Embed: %v", res.Warning)
		}
		out, _ := asset.Bytes()
		if !bytes.HasSuffix(out, frames) {
			t.Error("FLAC frames changed")
		}
	})

	t.Run("ogg", func(t *testing.T) {
		fx := vorbisStream(t, 44100, 88200)
		asset := staging.NewMemoryAsset("x.ogg", fx.data)
		if res := tagger.Embed(context.Background(), asset, testTrack(), cover); !res.Tagged {
			t.Fatalf("Embed: %v", res.Warning)
		}
		out, _ := asset.Bytes()
		r := bytes.NewReader(out)
		if _, err := readOggHeaders(r); err != nil {
			t.Fatalf("readOggHeaders: %v", err)
		}
		var (
			got     [][]byte
			lastSeq uint32
		)
		for {
			p, err := readOggPage(r)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("readOggPage: %v", err)
			}
			if lastSeq != 0 && p.Sequence != lastSeq+1 {
				t.Errorf("sequence %d follows %d", p.Sequence, lastSeq)
			}
			lastSeq = p.Sequence
			got = append(got, p.Data)
		}
		if len(got) != len(fx.audioPages) {
			t.Fatalf("got %d audio pages, want %d", len(got), len(fx.audioPages))
		}
		for i := range got {
			if !bytes.Equal(got[i], fx.audioPages[i]) {
				t.Errorf("audio page %d changed", i)
			}
		}
	})

	t.Run("wav", func(t *testing.T) {
		wav, data := wavStream()
		asset := staging.NewMemoryAsset("x.wav", wav)
		if res := tagger.Embed(context.Background(), asset, testTrack(), nil); !res.Tagged {
			t.Fatalf("Embed: %v", res.Warning)
		}
		out, _ := asset.Bytes()
		if !bytes.HasSuffix(out, data) {
			t.Error("PCM data changed")
		}
		if got := binary.LittleEndian.Uint32(out[4:8]); int(got) != len(out)-8 {
			t.Errorf("RIFF size = %d, want %d", got, len(out)-8)
		}
	})
}

func TestEmbedOggLargePicture(t *testing.T) {
	tagger := NewTagger()
	asset := staging.NewMemoryAsset("big.oga", vorbisStream(t, 48000, 48000).data)
	art := noise(200*1024, 9)

	res := tagger.Embed(context.Background(), asset, testTrack(), staging.NewMemoryAsset("art.jpg", art))
	if !res.Tagged || !res.PictureEmbedded {
		t.Fatalf("Embed = %+v", res)
	}
	_, pic, err := tagger.ReadTags(asset)
	if err != nil {
		t.Fatalf("ReadTags: %v", err)
	}
	if pic == nil || pic.MIME != mimeJPEG || !bytes.Equal(pic.Data, art) {
		t.Error("large picture did not survive")
	}
	if d, err := tagger.Duration(asset); err != nil || math.Abs(d.Seconds()-1) > 1e-9 {
		t.Errorf("Duration = %v, %v", d, err)
	}
}

func TestEmbedWAVSkipsArt(t *testing.T) {
	tagger := NewTagger()
	existing := buildInfoChunk([]infoField{{"ISFT", "Recorder 1.0"}, {"INAM", "stale"}})
	wav, _ := wavStream(existing)
	asset := staging.NewMemoryAsset("take.wav", wav)

	res := tagger.Embed(context.Background(), asset, testTrack(), staging.NewMemoryAsset("c.png", pngBytes(t)))
	if !res.Tagged || res.PictureEmbedded || !res.PictureSkipped || res.Warning != nil {
		t.Fatalf("Embed = %+v", res)
	}
	// A second pass must not stack INFO lists.
	if res := tagger.Embed(context.Background(), asset, testTrack(), nil); !res.Tagged {
		t.Fatalf("second Embed: %v", res.Warning)
	}

	meta, pic, err := tagger.ReadTags(asset)
	if err != nil {
		t.Fatalf("ReadTags: %v", err)
	}
	if meta != testTrack() {
		t.Errorf("meta = %+v", meta)
	}
	if pic != nil {
		t.Error("WAV should carry no picture")
	}

	out, _ := asset.Bytes()
	if n := bytes.Count(out, []byte("INFO")); n != 1 {
		t.Errorf("found %d INFO lists, want 1", n)
	}
	if !bytes.Contains(out, []byte("Recorder 1.0")) {
		t.Error("unrelated INFO field was dropped")
	}
	if bytes.Contains(out, []byte("stale")) {
		t.Error("replaced INFO field survived")
	}
}

func TestEmbedFallsBackOnBadInput(t *testing.T) {
	fx := vorbisStream(t, 44100, 44100)
	badCRC := append([]byte{}, fx.data...)
	badCRC[len(badCRC)-1] ^= 0xFF

	truncatedID3 := append([]byte("ID3\x04\x00\x00\x00\x00\x7f\x7f"), mp3Frames(2)...)

	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr error
	}{
		{"unsupported extension", "notes.aac", []byte("whatever"), ErrUnsupportedContainer},
		{"ogg named mp3", "song.mp3", fx.data, ErrFormatMismatch},
		{"mp3 named flac", "song.flac", mp3Frames(3), ErrFormatMismatch},
		{"truncated flac", "song.flac", flacStream(44100, 1, nil)[:20], nil},
		{"truncated id3", "song.mp3", truncatedID3, nil},
		{"ogg checksum", "song.ogg", badCRC, nil},
		{"riff without data", "song.wav", []byte("RIFF\x04\x00\x00\x00WAVE"), nil},
	}

	tagger := NewTagger()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := append([]byte{}, tt.data...)
			asset := staging.NewMemoryAsset(tt.file, tt.data)
			res := tagger.Embed(context.Background(), asset, testTrack(), staging.NewMemoryAsset("c.png", pngBytes(t)))
			if res.Tagged || res.Warning == nil {
				t.Fatalf("Embed = %+v, want warning", res)
			}
			var tagErr *TagError
			if !errors.As(res.Warning, &tagErr) {
				t.Errorf("warning %T is not a *TagError", res.Warning)
			}
			if tt.wantErr != nil && !errors.Is(res.Warning, tt.wantErr) {
				t.Errorf("warning = %v, want %v", res.Warning, tt.wantErr)
			}
			got, _ := asset.Bytes()
			if !bytes.Equal(got, original) {
				t.Error("asset changed after failed tagging")
			}
		})
	}
}

func TestEmbedOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "01 Intro.mp3")
	audio := mp3Frames(15)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		t.Fatal(err)
	}
	asset := staging.NewFileAsset("01 Intro.mp3", path)

	res := NewTagger().Embed(context.Background(), asset, testTrack(), nil)
	if !res.Tagged || res.PictureEmbedded {
		t.Fatalf("Embed = %+v", res)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, []byte("ID3\x04")) || !bytes.HasSuffix(out, audio) {
		t.Error("file was not rewritten with an ID3v2.4 tag")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("workspace holds %d files, want 1", len(entries))
	}
}

func TestEmbedCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	asset := staging.NewMemoryAsset("a.mp3", mp3Frames(3))
	res := NewTagger().Embed(ctx, asset, testTrack(), nil)
	if res.Tagged || !errors.Is(res.Warning, context.Canceled) {
		t.Fatalf("Embed = %+v", res)
	}
}

func TestDuration(t *testing.T) {
	wav, _ := wavStream()
	tests := []struct {
		name string
		file string
		data []byte
		want float64
		tol  float64
	}{
		{"mp3 frames", "a.mp3", mp3Frames(40), 40 * 1152.0 / 44100, 0.02},
		{"flac streaminfo", "a.flac", flacStream(44100, 441000, noise(64, 2)), 10, 1e-9},
		{"ogg granule", "a.ogg", vorbisStream(t, 44100, 88200).data, 2, 1e-9},
		{"opus granule minus pre-skip", "a.opus", opusStream(96312).data, 2, 1e-9},
		{"wav byte rate", "a.wav", wav, 2, 1e-9},
	}

	tagger := NewTagger()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tagger.Duration(staging.NewMemoryAsset(tt.file, tt.data))
			if err != nil {
				t.Fatalf("Duration: %v", err)
			}
			if math.Abs(d.Seconds()-tt.want) > tt.tol {
				t.Errorf("Duration = %v, want %.3fs", d, tt.want)
			}
		})
	}
}

func TestSupports(t *testing.T) {
	tagger := NewTagger()
	for name, want := range map[string]bool{
		"a.mp3":  true,
		"b.FLAC": true,
		"c.ogg":  true,
		"d.oga":  true,
		"e.opus": true,
		"f.wav":  true,
		"g.m4a":  false,
		"h.pdf":  false,
		"noext":  false,
	} {
		if got := tagger.Supports(name); got != want {
			t.Errorf("Supports(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSniffImageMIME(t *testing.T) {
	if got := SniffImageMIME(pngBytes(t)); got != mimePNG {
		t.Errorf("png sniffed as %q", got)
	}
	if got := SniffImageMIME(jpegBytes(t)); got != mimeJPEG {
		t.Errorf("jpeg sniffed as %q", got)
	}
	if got := SniffImageMIME([]byte("GIF89a")); got != mimeJPEG {
		t.Errorf("unknown sniffed as %q", got)
	}
	if NewPicture(nil) != nil {
		t.Error("NewPicture(nil) should be nil")
	}
}

func TestPaginateSpansPages(t *testing.T) {
	big := noise(255*255+100, 11)
	pages := paginate([][]byte{big, []byte("tail")}, 1, 5, 0)
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].Granule != oggNoGranule {
		t.Error("page without a completed packet must not carry a granule")
	}
	if pages[1].Flags&oggFlagContinued == 0 {
		t.Error("second page should be flagged as continued")
	}
	if pages[1].Sequence != 6 {
		t.Errorf("sequence = %d, want 6", pages[1].Sequence)
	}

	var stream bytes.Buffer
	for _, p := range pages {
		stream.Write(p.marshal())
	}
	r := bytes.NewReader(stream.Bytes())
	var joined []byte
	for {
		p, err := readOggPage(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("readOggPage: %v", err)
		}
		joined = append(joined, p.Data...)
	}
	if !bytes.Equal(joined, append(big, "tail"...)) {
		t.Error("paged data does not reassemble")
	}
}
