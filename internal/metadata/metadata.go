// Package metadata reads song tags and embedded lyrics from audio files.
package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"
	"github.com/go-flac/go-flac"
)

// Track is the subset of tags the video uses.
type Track struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// Read returns the title/artist tags of the file at path. A file without
// tags yields the file name as title and no error.
func Read(path string) (Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return Track{}, err
	}
	defer f.Close()

	fallback := Track{Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	m, err := tag.ReadFrom(f)
	if err != nil {
		return fallback, nil
	}
	t := Track{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(m.Artist()),
		Album:  strings.TrimSpace(m.Album()),
	}
	if t.Title == "" {
		t.Title = fallback.Title
	}
	return t, nil
}

// EmbeddedLyrics returns unsynchronised lyrics stored in the file's tags,
// or "" when there are none.
func EmbeddedLyrics(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return id3Lyrics(path)
	case ".flac":
		return flacLyrics(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(m.Lyrics()), nil
}

func id3Lyrics(path string) (string, error) {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return "", err
	}
	defer t.Close()

	var best string
	for _, fr := range t.GetFrames(t.CommonID("Unsynchronised lyrics/text transcription")) {
		uslt, ok := fr.(id3v2.UnsynchronisedLyricsFrame)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(uslt.Lyrics); len(s) > len(best) {
			best = s
		}
	}
	return best, nil
}

func flacLyrics(path string) (string, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return "", err
	}
	for _, m := range f.Meta {
		if m.Type != flac.VorbisComment {
			continue
		}
		comments, err := parseVorbisComments(m.Data)
		if err != nil {
			return "", err
		}
		for _, key := range []string{"LYRICS", "UNSYNCEDLYRICS"} {
			if v := strings.TrimSpace(comments[key]); v != "" {
				return v, nil
			}
		}
	}
	return "", nil
}

// parseVorbisComments decodes a VORBIS_COMMENT block body:
// [vendor len][vendor][count]([len][KEY=value])...
func parseVorbisComments(data []byte) (map[string]string, error) {
	r := bytes.NewReader(data)
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("vorbis vendor length: %w", err)
	}
	if _, err := r.Seek(int64(n), io.SeekCurrent); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("vorbis comment count: %w", err)
	}
	out := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("vorbis comment %d: %w", i, err)
		}
		if int64(n) > int64(r.Len()) {
			return nil, fmt.Errorf("vorbis comment %d overruns block", i)
		}
		buf := make([]byte, n)
		r.Read(buf)
		k, v, ok := strings.Cut(string(buf), "=")
		if !ok {
			continue
		}
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}
