package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"golang.org/x/text/encoding/charmap"
)

// Source is an opened input file, decompressed when it is gzip encoded.
type Source struct {
	io.Reader
	// Size is the on-disk size, used as a progress hint.
	Size int64

	file *os.File
	gz   *pgzip.Reader
}

// Close releases the decompressor and the file.
func (s *Source) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.file.Close()
}

// OpenSource opens path for parsing. Gzip input is detected by its magic
// bytes, not the file name, so renamed exports still load.
func OpenSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	br := bufio.NewReaderSize(f, 256*1024)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		return &Source{Reader: gz, Size: size, file: f, gz: gz}, nil
	}

	return &Source{Reader: br, Size: size, file: f}, nil
}

// charsetReader decodes the single-byte encodings older engine exports declare.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}
