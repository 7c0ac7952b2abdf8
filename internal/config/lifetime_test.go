package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLifetime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "1h", want: time.Hour},
		{in: "30m", want: 30 * time.Minute},
		{in: "1d12h", want: 36 * time.Hour},
		{in: "3600", want: time.Hour},
		{in: " 2d ", want: 48 * time.Hour},
		{in: "", wantErr: true},
		{in: "xd", wantErr: true},
		{in: "7 days", wantErr: true},
		{in: "1d-", wantErr: true},
		{in: "106751d", want: 106751 * 24 * time.Hour},
		{in: "106752d", wantErr: true},
		{in: "213504d", wantErr: true},
		{in: "106751d24h", wantErr: true},
		{in: "9223372037", wantErr: true},
		{in: "-5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLifetime(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLifetime_UnmarshalText(t *testing.T) {
	var l Lifetime
	require.NoError(t, l.UnmarshalText([]byte("7d")))
	assert.Equal(t, 168*time.Hour, l.Duration())
	assert.Equal(t, "168h0m0s", l.String())
	require.Error(t, l.UnmarshalText([]byte("nope")))
}
