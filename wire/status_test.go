package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{name: "accepted", in: "HTTP/1.1 200", want: 200},
		{name: "with reason", in: "HTTP/1.1 200 OK\r\n", want: 200},
		{name: "rate limited", in: "HTTP/1.1 429", want: 429},
		{name: "forbidden", in: "HTTP/1.0 403 Forbidden", want: 403},
		{name: "empty", in: "", wantErr: true},
		{name: "not http", in: "SSH-2.0-Open", wantErr: true},
		{name: "short", in: "HTTP/1.1 20", wantErr: true},
		{name: "letters", in: "HTTP/1.1 OK2", wantErr: true},
		{name: "out of range", in: "HTTP/1.1 999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus([]byte(tt.in))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadStatusReadsFixedPrefix(t *testing.T) {
	r := strings.NewReader("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	code, err := ReadStatus(r)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, code)
	assert.Equal(t, len(" OK\r\nContent-Length: 0\r\n\r\n"), r.Len())
}

func TestReadStatusShortResponse(t *testing.T) {
	_, err := ReadStatus(strings.NewReader("HTTP/1.1"))
	assert.Error(t, err)
}
