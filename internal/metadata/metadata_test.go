package metadata

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
)

func writeTagged(t *testing.T, path, title, artist, lyrics string) {
	t.Helper()
	tg := id3v2.NewEmptyTag()
	tg.SetDefaultEncoding(id3v2.EncodingUTF8)
	tg.SetTitle(title)
	tg.SetArtist(artist)
	if lyrics != "" {
		tg.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "hin",
			ContentDescriptor: "",
			Lyrics:            lyrics,
		})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := tg.WriteTo(f); err != nil {
		t.Fatal(err)
	}
	f.Write(make([]byte, 256)) // stand-in audio payload
}

func TestReadTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	writeTagged(t, path, "Dil Se", "A. R. Rahman", "")

	tr, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tr.Title != "Dil Se" || tr.Artist != "A. R. Rahman" {
		t.Errorf("track = %+v", tr)
	}
}

func TestReadUntaggedFallsBackToFileName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my track.wav")
	os.WriteFile(path, []byte("not really audio"), 0o644)

	tr, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tr.Title != "my track" || tr.Artist != "" {
		t.Errorf("track = %+v", tr)
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEmbeddedLyricsID3(t *testing.T) {
	dir := t.TempDir()
	with := filepath.Join(dir, "with.mp3")
	writeTagged(t, with, "T", "A", "पहली पंक्ति\nदूसरी पंक्ति")
	got, err := EmbeddedLyrics(with)
	if err != nil {
		t.Fatalf("EmbeddedLyrics: %v", err)
	}
	if got != "पहली पंक्ति\nदूसरी पंक्ति" {
		t.Errorf("lyrics = %q", got)
	}

	without := filepath.Join(dir, "without.mp3")
	writeTagged(t, without, "T", "A", "")
	if got, err := EmbeddedLyrics(without); err != nil || got != "" {
		t.Errorf("no USLT: %q, %v", got, err)
	}
}

func vorbisBlock(vendor string, comments ...string) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, uint32(len(vendor)))
	b.WriteString(vendor)
	binary.Write(&b, binary.LittleEndian, uint32(len(comments)))
	for _, c := range comments {
		binary.Write(&b, binary.LittleEndian, uint32(len(c)))
		b.WriteString(c)
	}
	return b.Bytes()
}

func TestParseVorbisComments(t *testing.T) {
	got, err := parseVorbisComments(vorbisBlock("ref", "TITLE=Song", "lyrics=la la\nla", "junk"))
	if err != nil {
		t.Fatal(err)
	}
	if got["TITLE"] != "Song" || got["LYRICS"] != "la la\nla" {
		t.Errorf("comments = %v", got)
	}
	if _, ok := got["JUNK"]; ok {
		t.Error("entry without '=' should be skipped")
	}
}

func TestParseVorbisCommentsTruncated(t *testing.T) {
	block := vorbisBlock("v", "TITLE=Song")
	if _, err := parseVorbisComments(block[:len(block)-3]); err == nil {
		t.Error("expected error for truncated block")
	}
	if _, err := parseVorbisComments([]byte{1}); err == nil {
		t.Error("expected error for short block")
	}
}
