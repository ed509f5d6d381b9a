package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

var errNotWAV = errors.New("not a RIFF/WAVE file")

// mediaDuration reads the duration from a WAV header when it can and asks
// ffprobe otherwise
func mediaDuration(ctx context.Context, path string) (float64, error) {
	d, err := wavDuration(path)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, errNotWAV) {
		return 0, err
	}
	return probeDuration(ctx, path)
}

// probeDuration uses ffprobe to get accurate audio duration in seconds
func probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var dur float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur); err != nil {
		return 0, fmt.Errorf("ffprobe %s: unexpected output %q", path, out)
	}
	return dur, nil
}

// wavDuration walks the RIFF chunks of a WAV file: duration is the data
// chunk size over the byte rate from the fmt chunk
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return 0, errNotWAV
	}
	if !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return 0, errNotWAV
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	var byteRate uint32
	offset := int64(12)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return 0, fmt.Errorf("%s: no data chunk", path)
		}
		offset += 8
		id := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch id {
		case "fmt ":
			var fmtChunk [16]byte
			if size < 16 {
				return 0, fmt.Errorf("%s: short fmt chunk", path)
			}
			if _, err := io.ReadFull(f, fmtChunk[:]); err != nil {
				return 0, fmt.Errorf("%s: %w", path, err)
			}
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			if _, err := f.Seek(int64(size-16)+int64(size%2), io.SeekCurrent); err != nil {
				return 0, err
			}
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("%s: data chunk before fmt chunk", path)
			}
			dataLen := int64(size)
			// streamed WAVs leave the size unset
			if size == 0 || size == 0xFFFFFFFF || offset+dataLen > info.Size() {
				dataLen = info.Size() - offset
			}
			return float64(dataLen) / float64(byteRate), nil
		default:
			if _, err := f.Seek(int64(size)+int64(size%2), io.SeekCurrent); err != nil {
				return 0, err
			}
		}
		offset += int64(size) + int64(size%2)
	}
}

// writeWAV wraps raw little-endian PCM in a canonical WAV header
func writeWAV(path string, pcm []byte, sampleRate, channels, bitsPerSample int) error {
	blockAlign := channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return os.WriteFile(path, buf.Bytes(), 0644)
}
