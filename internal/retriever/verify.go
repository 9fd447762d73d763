package retriever

import (
	"errors"
	"io/fs"
	"math"
	"os"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// ToleranceKB is how far below the declared size a file may fall and still
// count as complete.
const ToleranceKB = 10

// Verdict is the outcome of checking a file against its declared size.
type Verdict struct {
	Exists     bool
	SizeBytes  int64
	ActualKB   int64
	ExpectedKB int64
	Complete   bool
}

// SizeKB converts a byte count to whole kilobytes (1 KB = 1000 bytes),
// rounding halves to even.
func SizeKB(n int64) int64 {
	return int64(math.RoundToEven(float64(n) / 1000))
}

// Verify inspects path. A missing file is incomplete. An unknown declared size
// (zero or less) accepts any existing file. Files at or above the declared
// size are complete however much larger they are; smaller files are complete
// only within ToleranceKB.
func Verify(path string, expectedKB int64) (Verdict, error) {
	v := Verdict{ExpectedKB: expectedKB}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return v, &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "verify", Path: path, Err: err}
	}
	if info.IsDir() {
		return v, &crawler.Failure{Kind: crawler.ErrFilesystem, Op: "verify", Path: path, Err: errors.New("path is a directory")}
	}

	v.Exists = true
	v.SizeBytes = info.Size()
	v.ActualKB = SizeKB(v.SizeBytes)
	v.Complete = withinTolerance(v.ActualKB, expectedKB)
	return v, nil
}

func withinTolerance(actualKB, expectedKB int64) bool {
	if expectedKB <= 0 || actualKB >= expectedKB {
		return true
	}
	return expectedKB-actualKB <= ToleranceKB
}

// NeedsRetrieval reports whether path must be (re)downloaded.
func NeedsRetrieval(path string, expectedKB int64) (bool, Verdict, error) {
	v, err := Verify(path, expectedKB)
	if err != nil {
		return false, v, err
	}
	return !v.Exists || !v.Complete, v, nil
}
