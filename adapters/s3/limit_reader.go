package s3

import (
	"fmt"
	"io"
)

var ErrReachLimitType *ReachLimitError

type ReachLimitError struct {
	MaxBytes int64
}

func (e *ReachLimitError) Error() string {
	return fmt.Sprintf("reach limit of %s", FormatBytes(e.MaxBytes))
}

// NewLimitReader 建立限制讀取長度的 Reader
// 讀取的長度超過限制時回傳 ReachLimitError，用於擋下過大的上傳內容
func NewLimitReader(r io.Reader, maxSize int64) io.Reader {
	return &limitReader{r, maxSize, maxSize}
}

type limitReader struct {
	reader io.Reader
	max    int64 // 限制的總長度
	left   int64 // 還可以讀取的長度
}

func (r *limitReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	// 多讀一個 byte 就能判斷來源是否超過限制
	if int64(len(p)) > r.left+1 {
		p = p[:r.left+1]
	}
	n, err = r.reader.Read(p)
	if int64(n) <= r.left {
		r.left -= int64(n)
		return n, err
	}
	n = int(r.left)
	r.left = 0
	return n, &ReachLimitError{r.max}
}

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// FormatBytes 將位元組數轉為容易閱讀的字串
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d bytes", bytes)
	}
	value := float64(bytes)
	for _, unit := range byteUnits {
		value /= 1024
		if value < 1024 || unit == "TB" {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
	}
	return fmt.Sprintf("%d bytes", bytes)
}
