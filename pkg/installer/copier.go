package installer

import (
	"context"
	"errors"
	"io"
)

// ChunkSize is the fixed copy granularity.
const ChunkSize = 8 * 1024

// progressSteps bounds how many progress callbacks one copy may fire.
const progressSteps = 100

// ProgressFunc receives copy progress as progress out of max (always DefaultProgressMax).
type ProgressFunc func(progress, max int)

type flusher interface {
	Flush() error
}

// CopyWithProgress copies src into dst in ChunkSize chunks.
//
// totalSize is the size of the whole logical transfer and offsetBytes the number
// of bytes of it already copied by earlier segments, so several parts can share
// one 0..100 range. Callbacks fire every ratio-th chunk where
// ratio = ceil(totalSize / (ChunkSize*100)), which keeps them at or below 100 per
// transfer. When the final segment ends between two callbacks a closing 100 is
// reported.
//
// ctx is checked between chunks. dst is flushed and closed before returning;
// src is left open for the caller.
func CopyWithProgress(ctx context.Context, dst io.WriteCloser, src io.Reader, totalSize, offsetBytes int64, onProgress ProgressFunc) (written int64, err error) {
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ratio := progressRatio(totalSize)
	progressMax := ceilDiv(totalSize, ChunkSize*ratio)
	if progressMax < 1 {
		progressMax = 1
	}
	current := offsetBytes / ChunkSize
	lastReported := -1

	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			current++
			if current%ratio == 0 && onProgress != nil {
				lastReported = clampPercent(float64(current * progressSteps / (ratio * progressMax)))
				onProgress(lastReported, DefaultProgressMax)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			return written, rerr
		}
	}

	if f, ok := dst.(flusher); ok {
		if err := f.Flush(); err != nil {
			return written, err
		}
	}

	if onProgress != nil && lastReported != DefaultProgressMax && offsetBytes+written >= totalSize {
		onProgress(DefaultProgressMax, DefaultProgressMax)
	}
	return written, nil
}

func progressRatio(totalSize int64) int64 {
	ratio := ceilDiv(totalSize, ChunkSize*progressSteps)
	if ratio < 1 {
		return 1
	}
	return ratio
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func clampPercent(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > DefaultProgressMax:
		return DefaultProgressMax
	default:
		return int(v)
	}
}
