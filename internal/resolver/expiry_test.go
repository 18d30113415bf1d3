package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExtractExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		url  string
		want time.Time
	}{
		{name: "expire parameter", url: "https://cdn/x?expire=1000000000&ip=1", want: time.Unix(1000000000, 0).UTC()},
		{name: "future", url: "https://cdn/x?id=7&expire=1900000000", want: time.Unix(1900000000, 0).UTC()},
		{name: "zero kept", url: "https://cdn/x?expire=0", want: time.Unix(0, 0).UTC()},
		{name: "negative kept", url: "https://cdn/x?expire=-5", want: time.Unix(-5, 0).UTC()},
		{name: "missing", url: "https://cdn/x?ip=1", want: now.Add(time.Hour)},
		{name: "not an integer", url: "https://cdn/x?expire=soon", want: now.Add(time.Hour)},
		{name: "fractional", url: "https://cdn/x?expire=1.5", want: now.Add(time.Hour)},
		{name: "unparsable url", url: "://bad\x7f", want: now.Add(time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.want.Equal(ExtractExpiry(tt.url, now)))
		})
	}
}
