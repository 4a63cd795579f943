package zarr

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/san-kum/stemsim/internal/field"
)

const (
	groupFile = ".zgroup"
	attrsFile = ".zattrs"
	arrayFile = ".zarray"

	DtypeComplex = "<c16"
	DtypeReal    = "<f8"

	// DefaultLevel is the zstd level written to new arrays.
	DefaultLevel = 3
)

var (
	ErrExists   = errors.New("zarr: store already exists")
	ErrNotFound = errors.New("zarr: not found")
	ErrDtype    = errors.New("zarr: unsupported dtype")
)

type Compressor struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

// ArrayMeta is the content of a .zarray document (format version 2).
type ArrayMeta struct {
	ZarrFormat         int         `json:"zarr_format"`
	Shape              []int       `json:"shape"`
	Chunks             []int       `json:"chunks"`
	Dtype              string      `json:"dtype"`
	Compressor         *Compressor `json:"compressor"`
	FillValue          any         `json:"fill_value"`
	Order              string      `json:"order"`
	Filters            []any       `json:"filters"`
	DimensionSeparator string      `json:"dimension_separator"`
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// CreateGroup creates a group directory holding attrs. An existing path is
// removed first when overwrite is set, otherwise it is an error.
func CreateGroup(path string, attrs any, overwrite bool) error {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(path, groupFile), map[string]int{"zarr_format": 2}); err != nil {
		return err
	}
	return writeJSON(filepath.Join(path, attrsFile), attrs)
}

// ReadAttrs decodes the attributes of a group or array into v.
func ReadAttrs(path string, v any) error {
	if err := readJSON(filepath.Join(path, groupFile), &map[string]int{}); err != nil {
		return err
	}
	return readJSON(filepath.Join(path, attrsFile), v)
}

// chunkShape puts each leading index in its own chunk. 2D arrays are one
// chunk.
func chunkShape(shape []int) []int {
	chunks := append([]int(nil), shape...)
	for i := 0; i < len(chunks)-2; i++ {
		chunks[i] = 1
	}
	return chunks
}

// chunkKeys lists the chunk keys of a chunking over the leading axes, in
// row-major order.
func chunkKeys(shape, chunks []int) []string {
	lead := len(shape) - 2
	if lead < 0 {
		lead = 0
	}
	idx := make([]int, len(shape))
	total := 1
	for i := 0; i < lead; i++ {
		total *= shape[i]
	}
	keys := make([]string, 0, total)
	for range total {
		parts := make([]string, len(idx))
		for i, v := range idx {
			parts[i] = strconv.Itoa(v)
		}
		keys = append(keys, strings.Join(parts, "."))
		for i := lead - 1; i >= 0; i-- {
			idx[i]++
			if idx[i]*chunks[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return keys
}

type element interface{ float64 | complex128 }

func dtypeOf[T element]() string {
	var zero T
	if _, ok := any(zero).(complex128); ok {
		return DtypeComplex
	}
	return DtypeReal
}

func encode[T element](values []T) []byte {
	var out []byte
	for _, v := range values {
		switch x := any(v).(type) {
		case complex128:
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(real(x)))
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(imag(x)))
		case float64:
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(x))
		}
	}
	return out
}

func decode[T element](b []byte, dst []T) error {
	var zero T
	_, isComplex := any(zero).(complex128)
	width := 8
	if isComplex {
		width = 16
	}
	if len(b) != len(dst)*width {
		return fmt.Errorf("zarr: chunk holds %d bytes, want %d", len(b), len(dst)*width)
	}
	for i := range dst {
		re := math.Float64frombits(binary.LittleEndian.Uint64(b[i*width:]))
		if isComplex {
			im := math.Float64frombits(binary.LittleEndian.Uint64(b[i*width+8:]))
			dst[i] = any(complex(re, im)).(T)
		} else {
			dst[i] = any(re).(T)
		}
	}
	return nil
}

// WriteArray stores a as array name inside the group at root, compressed
// with zstd at the given level.
func WriteArray[T element](root, name string, a *field.Array[T], level int) error {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	chunks := chunkShape(a.Shape)
	meta := ArrayMeta{
		ZarrFormat:         2,
		Shape:              a.Shape,
		Chunks:             chunks,
		Dtype:              dtypeOf[T](),
		Compressor:         &Compressor{ID: "zstd", Level: level},
		FillValue:          nil,
		Order:              "C",
		DimensionSeparator: ".",
	}
	if err := writeJSON(filepath.Join(dir, arrayFile), meta); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return err
	}
	defer enc.Close()

	keys := chunkKeys(a.Shape, chunks)
	size := len(a.Data) / len(keys)
	for i, key := range keys {
		raw := encode(a.Data[i*size : (i+1)*size])
		if err := os.WriteFile(filepath.Join(dir, key), enc.EncodeAll(raw, nil), 0644); err != nil {
			return err
		}
	}
	return nil
}

// ReadMeta returns the .zarray document of array name.
func ReadMeta(root, name string) (ArrayMeta, error) {
	var meta ArrayMeta
	err := readJSON(filepath.Join(root, name, arrayFile), &meta)
	return meta, err
}

// ReadArray loads an array written by WriteArray.
func ReadArray[T element](root, name string) (*field.Array[T], error) {
	meta, err := ReadMeta(root, name)
	if err != nil {
		return nil, err
	}
	if meta.Dtype != dtypeOf[T]() {
		return nil, fmt.Errorf("%w: %s", ErrDtype, meta.Dtype)
	}
	if meta.Compressor != nil && meta.Compressor.ID != "zstd" {
		return nil, fmt.Errorf("zarr: unsupported compressor %q", meta.Compressor.ID)
	}

	a, err := field.New[T](meta.Shape...)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	keys := chunkKeys(meta.Shape, meta.Chunks)
	size := len(a.Data) / len(keys)
	for i, key := range keys {
		b, err := os.ReadFile(filepath.Join(root, name, key))
		if err != nil {
			return nil, err
		}
		if meta.Compressor != nil {
			if b, err = dec.DecodeAll(b, nil); err != nil {
				return nil, fmt.Errorf("zarr: chunk %s: %w", key, err)
			}
		}
		if err := decode(b, a.Data[i*size:(i+1)*size]); err != nil {
			return nil, err
		}
	}
	return a, nil
}
