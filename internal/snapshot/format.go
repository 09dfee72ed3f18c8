// Package snapshot reads and writes exported nodenets as files.
//
// Two formats exist. V1 is the plain indented JSON of nodenet.Data. V2 is a
// one-line JSON header followed by the gzip-compressed JSON payload; the
// header carries a sha256 checksum of the compressed bytes so a snapshot can
// be verified without decompressing it.
package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
)

// Format version constants.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// MaxDecompressedSize is the maximum allowed size of a decompressed payload (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// ErrChecksum is returned when a V2 payload does not match its header.
var ErrChecksum = errors.New("snapshot checksum mismatch")

// Header is the plain-text first line of a V2 snapshot.
type Header struct {
	Format     int       `json:"format"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"`
	NodenetUID string    `json:"nodenet_uid"`
	Name       string    `json:"name,omitempty"`
	Step       int       `json:"step"`
	NodeCount  int       `json:"node_count"`
	LinkCount  int       `json:"link_count"`
	Compressed bool      `json:"compressed"`
}

func checksum(b []byte) string {
	hash := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// DetectFormat reads the first line of a file to determine V1 vs V2.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("reading first line: %w", err)
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, fmt.Errorf("file is empty")
	}

	var header Header
	if err := json.Unmarshal(line, &header); err == nil && header.Format == FormatV2 {
		return FormatV2, nil
	}
	if line[0] == '{' {
		return FormatV1, nil
	}
	return 0, fmt.Errorf("unrecognized snapshot format")
}

// Write stores data at path in the given format, creating the directory.
func Write(path string, data nodenet.Data, format int) error {
	var content []byte
	switch format {
	case FormatV1:
		b, err := data.Marshal()
		if err != nil {
			return fmt.Errorf("marshaling nodenet: %w", err)
		}
		content = append(b, '\n')
	case FormatV2:
		b, err := encodeV2(data, time.Now().UTC())
		if err != nil {
			return err
		}
		content = b
	default:
		return fmt.Errorf("unknown snapshot format %d", format)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func encodeV2(data nodenet.Data, created time.Time) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Format:     FormatV2,
		CreatedAt:  created,
		Checksum:   checksum(compressed.Bytes()),
		NodenetUID: data.UID,
		Name:       data.Name,
		Step:       data.Step,
		NodeCount:  len(data.Nodes),
		LinkCount:  len(data.Links),
		Compressed: true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	var out bytes.Buffer
	out.Write(headerBytes)
	out.WriteByte('\n')
	out.Write(compressed.Bytes())
	return out.Bytes(), nil
}

// Read loads a snapshot of either format. V2 payloads are verified against
// their checksum before decompression.
func Read(path string) (nodenet.Data, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nodenet.Data{}, err
	}
	if format == FormatV1 {
		b, err := os.ReadFile(path)
		if err != nil {
			return nodenet.Data{}, fmt.Errorf("reading snapshot: %w", err)
		}
		return nodenet.ParseData(b)
	}

	_, compressed, err := readV2(path)
	if err != nil {
		return nodenet.Data{}, err
	}
	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nodenet.Data{}, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nodenet.Data{}, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nodenet.Data{}, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}
	return nodenet.ParseData(decompressed)
}

// readV2 returns the header and the checksum-verified compressed payload.
func readV2(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := parseHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, header.Checksum, actual)
	}
	return header, compressed, nil
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Format != FormatV2 {
		return nil, fmt.Errorf("expected V2 format, got format %d", header.Format)
	}
	return &header, nil
}

// ReadHeader reads only the header line of a V2 snapshot.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return parseHeader(bufio.NewReader(f))
}

// Verify checks the integrity of a V2 snapshot without decompressing it.
func Verify(path string) error {
	_, _, err := readV2(path)
	return err
}
