package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"path/filepath"
	"time"
	"unicode/utf16"

	"github.com/ulikunitz/xz/lzma"
)

// SevenZipEncoder упаковывает файл в 7z с одной записью (кодек LZMA).
type SevenZipEncoder struct {
	maxSourceSize int64
}

// Format возвращает FormatSevenZip.
func (e *SevenZipEncoder) Format() Format {
	return FormatSevenZip
}

// Encode собирает 7z-архив в памяти.
func (e *SevenZipEncoder) Encode(ctx context.Context, absPath string) (*Payload, error) {
	f, info, src, err := openLimitedSource(ctx, absPath, e.maxSourceSize)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", absPath, err)
	}

	name := filepath.Base(absPath)
	entry := sevenZipEntry{
		name:    name,
		modTime: info.ModTime(),
		mode:    info.Mode(),
	}

	var out bytes.Buffer
	if err := writeSevenZip(&out, entry, data); err != nil {
		return nil, fmt.Errorf("ошибка упаковки %s в 7z: %w", name, err)
	}

	return &Payload{
		Content:     bytes.NewReader(out.Bytes()),
		ContentType: ContentTypeSevenZip,
		Filename:    ReplaceExt(name, ".7z"),
		Size:        int64(out.Len()),
		ModTime:     info.ModTime(),
	}, nil
}

// --- Контейнер 7z ---

// Идентификаторы свойств заголовка 7z.
const (
	sevenZipEnd            = 0x00
	sevenZipHeader         = 0x01
	sevenZipMainStreams    = 0x04
	sevenZipFilesInfo      = 0x05
	sevenZipPackInfo       = 0x06
	sevenZipUnpackInfo     = 0x07
	sevenZipSize           = 0x09
	sevenZipCRC            = 0x0A
	sevenZipFolder         = 0x0B
	sevenZipCodersUnpack   = 0x0C
	sevenZipEmptyStream    = 0x0E
	sevenZipEmptyFile      = 0x0F
	sevenZipName           = 0x11
	sevenZipMTime          = 0x14
	sevenZipWinAttributes  = 0x15
	sevenZipSignatureSize  = 32
	sevenZipLZMAHeaderSize = 13
)

var (
	sevenZipMagic   = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	sevenZipLZMAID  = []byte{0x03, 0x01, 0x01}
	sevenZipVersion = []byte{0, 4}
)

// Атрибуты Windows и флаг unix-расширения (режим в старших 16 битах).
const (
	winAttrArchive   = 0x20
	winAttrUnixExt   = 0x8000
	unixModeRegular  = 0x8000
	filetimeEpochGap = 116444736000000000
)

// sevenZipEntry — метаданные единственной записи архива.
type sevenZipEntry struct {
	name    string
	modTime time.Time
	mode    fs.FileMode
}

// writeSevenZip пишет архив: сигнатурный заголовок, сжатый поток, заголовок.
// Пустой файл записывается как запись без потока.
func writeSevenZip(w io.Writer, entry sevenZipEntry, data []byte) error {
	var packed []byte
	var props []byte
	if len(data) > 0 {
		var err error
		packed, props, err = compressLZMA(data)
		if err != nil {
			return err
		}
	}

	var hdr bytes.Buffer
	hdr.WriteByte(sevenZipHeader)
	if len(data) > 0 {
		writeMainStreams(&hdr, len(packed), props, len(data), crc32.ChecksumIEEE(data))
	}
	writeFilesInfo(&hdr, entry, len(data) == 0)
	hdr.WriteByte(sevenZipEnd)

	header := hdr.Bytes()

	var start [20]byte
	binary.LittleEndian.PutUint64(start[0:8], uint64(len(packed)))
	binary.LittleEndian.PutUint64(start[8:16], uint64(len(header)))
	binary.LittleEndian.PutUint32(start[16:20], crc32.ChecksumIEEE(header))

	sig := make([]byte, 0, sevenZipSignatureSize)
	sig = append(sig, sevenZipMagic...)
	sig = append(sig, sevenZipVersion...)
	sig = binary.LittleEndian.AppendUint32(sig, crc32.ChecksumIEEE(start[:]))
	sig = append(sig, start[:]...)

	for _, part := range [][]byte{sig, packed, header} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// compressLZMA сжимает data и возвращает поток без заголовка .lzma
// и 5 байт свойств кодера (lc/lp/pb и размер словаря).
func compressLZMA(data []byte) (stream, props []byte, err error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		SizeInHeader: true,
		Size:         int64(len(data)),
		EOSMarker:    false,
	}
	lw, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка инициализации LZMA: %w", err)
	}
	if _, err := lw.Write(data); err != nil {
		return nil, nil, fmt.Errorf("ошибка сжатия LZMA: %w", err)
	}
	if err := lw.Close(); err != nil {
		return nil, nil, fmt.Errorf("ошибка завершения LZMA: %w", err)
	}

	raw := buf.Bytes()
	if len(raw) < sevenZipLZMAHeaderSize {
		return nil, nil, fmt.Errorf("короткий поток LZMA: %d байт", len(raw))
	}
	props = append([]byte(nil), raw[:5]...)
	return raw[sevenZipLZMAHeaderSize:], props, nil
}

// writeMainStreams пишет описание одного упакованного потока
// и одной папки с кодером LZMA.
func writeMainStreams(b *bytes.Buffer, packSize int, props []byte, unpackSize int, crc uint32) {
	b.WriteByte(sevenZipMainStreams)

	b.WriteByte(sevenZipPackInfo)
	writeNumber(b, 0) // pack pos
	writeNumber(b, 1) // pack streams
	b.WriteByte(sevenZipSize)
	writeNumber(b, uint64(packSize))
	b.WriteByte(sevenZipEnd)

	b.WriteByte(sevenZipUnpackInfo)
	b.WriteByte(sevenZipFolder)
	writeNumber(b, 1) // folders
	b.WriteByte(0)    // external
	writeNumber(b, 1) // coders
	b.WriteByte(byte(len(sevenZipLZMAID)) | 0x20)
	b.Write(sevenZipLZMAID)
	writeNumber(b, uint64(len(props)))
	b.Write(props)
	b.WriteByte(sevenZipCodersUnpack)
	writeNumber(b, uint64(unpackSize))
	b.WriteByte(sevenZipCRC)
	b.WriteByte(1) // all defined
	b.Write(binary.LittleEndian.AppendUint32(nil, crc))
	b.WriteByte(sevenZipEnd)

	b.WriteByte(sevenZipEnd)
}

// writeFilesInfo пишет имя, время изменения и атрибуты записи.
func writeFilesInfo(b *bytes.Buffer, entry sevenZipEntry, empty bool) {
	b.WriteByte(sevenZipFilesInfo)
	writeNumber(b, 1)

	if empty {
		// битовые векторы, старший бит — первая запись
		b.WriteByte(sevenZipEmptyStream)
		writeNumber(b, 1)
		b.WriteByte(0x80)
		b.WriteByte(sevenZipEmptyFile)
		writeNumber(b, 1)
		b.WriteByte(0x80)
	}

	units := utf16.Encode([]rune(entry.name))
	b.WriteByte(sevenZipName)
	writeNumber(b, uint64(1+2*(len(units)+1)))
	b.WriteByte(0) // external
	for _, u := range units {
		b.Write(binary.LittleEndian.AppendUint16(nil, u))
	}
	b.Write([]byte{0, 0})

	b.WriteByte(sevenZipMTime)
	writeNumber(b, 1+1+8)
	b.WriteByte(1) // all defined
	b.WriteByte(0) // external
	b.Write(binary.LittleEndian.AppendUint64(nil, toFiletime(entry.modTime)))

	attrs := uint32(winAttrArchive|winAttrUnixExt) | (unixModeRegular|uint32(entry.mode.Perm()))<<16
	b.WriteByte(sevenZipWinAttributes)
	writeNumber(b, 1+1+4)
	b.WriteByte(1) // all defined
	b.WriteByte(0) // external
	b.Write(binary.LittleEndian.AppendUint32(nil, attrs))

	b.WriteByte(sevenZipEnd)
}

// writeNumber кодирует число переменной длины 7z: количество старших
// единичных бит первого байта равно числу дополнительных байт.
func writeNumber(b *bytes.Buffer, v uint64) {
	first := byte(0)
	mask := byte(0x80)
	i := 0
	for ; i < 8; i++ {
		if v < uint64(1)<<(7*(i+1)) {
			first |= byte(v >> (8 * i))
			break
		}
		first |= mask
		mask >>= 1
	}
	b.WriteByte(first)
	for ; i > 0; i-- {
		b.WriteByte(byte(v))
		v >>= 8
	}
}

// toFiletime переводит время в FILETIME (100 нс с 1601-01-01).
func toFiletime(t time.Time) uint64 {
	return uint64(t.UnixNano()/100) + filetimeEpochGap
}
