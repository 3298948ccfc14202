package store

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/watzon/gensched/internal/task"
)

// Results at least this large are stored zstd-compressed.
const compressThreshold = 1024

const encodingZstd = "zstd"

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func encodeResult(raw []byte) ([]byte, string, error) {
	if len(raw) < compressThreshold {
		return raw, "", nil
	}
	enc, _, err := codecs()
	if err != nil {
		return nil, "", fmt.Errorf("creating zstd encoder: %w", err)
	}
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), encodingZstd, nil
}

func decodeResult(stored []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "":
		return stored, nil
	case encodingZstd:
		_, dec, err := codecs()
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing result: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported result encoding: %s", encoding)
	}
}

func joinInts[T ~int](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ",")
}

func splitInts[T ~int](s string) ([]T, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]T, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid list value %q: %w", p, err)
		}
		out = append(out, T(n))
	}
	return out, nil
}

func joinStatuses(vals []task.HistoryStatus) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func splitStatuses(s string) ([]task.HistoryStatus, error) {
	if s == "" {
		return nil, nil
	}
	var out []task.HistoryStatus
	for _, p := range strings.Split(s, ",") {
		st, err := task.ParseHistoryStatus(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
