package s3_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"furima/adapters/s3"
)

func TestLimitReader(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		maxSize    int64
		wantN      int
		wantErr    bool
		wantErrMsg string
	}{
		{
			name:    "讀取小於限制的內容",
			input:   []byte("hello"),
			maxSize: 10,
			wantN:   5,
			wantErr: false,
		},
		{
			name:       "讀取超過限制的內容",
			input:      []byte("hello world"),
			maxSize:    5,
			wantN:      5,
			wantErr:    true,
			wantErrMsg: "reach limit of 5 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := s3.NewLimitReader(bytes.NewReader(tt.input), tt.maxSize)
			buf := make([]byte, len(tt.input))
			n, err := reader.Read(buf)

			assert.Equal(t, tt.wantN, n)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.wantErrMsg, err.Error())
			} else {
				assert.True(t, err == nil || err == io.EOF)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{name: "bytes", bytes: 500, want: "500 bytes"},
		{name: "KB", bytes: 1024 * 2, want: "2.00 KB"},
		{name: "MB", bytes: 1024 * 1024 * 3, want: "3.00 MB"},
		{name: "GB", bytes: 1024 * 1024 * 1024 * 4, want: "4.00 GB"},
		{name: "TB", bytes: 1024 * 1024 * 1024 * 1024 * 5, want: "5.00 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s3.FormatBytes(tt.bytes))
		})
	}
}

func TestImageExtension(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		wantExt  string
		wantOk   bool
	}{
		{name: "valid JPEG image", mimeType: "image/jpeg", wantExt: "jpeg", wantOk: true},
		{name: "valid PNG image", mimeType: "image/png", wantExt: "png", wantOk: true},
		{name: "invalid image type", mimeType: "application/pdf", wantExt: "", wantOk: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := s3.ImageExtension(tt.mimeType)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}
