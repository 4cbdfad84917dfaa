package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dhcgn/threadgraph/stats"
)

func TestShorten(t *testing.T) {
	assert.Equal(t, "inbox/12.", shorten("maildir/allen-p/inbox/12.", 40))
	assert.Equal(t, "...ry_long_folder_name/1.", shorten("x/a_very_long_folder_name/1.", 25))
}

func TestBar_DisabledOutsideInfo(t *testing.T) {
	for _, bar := range []*Bar{New(10, "debug"), New(0, "info")} {
		assert.False(t, bar.enabled)
		bar.Update(stats.Event{Type: stats.EventTypeScanned})
		bar.Stop()
	}
}

type recordingStream struct {
	names []string
}

func (r *recordingStream) SubscribeStats(name string, _ func(context.Context, <-chan stats.Event) error) {
	r.names = append(r.names, name)
}

func TestNewProgressReporter_SubscribesOnlyWhenEnabled(t *testing.T) {
	stream := &recordingStream{}
	NewProgressReporter(stream, New(5, "warn"), nil)
	assert.Empty(t, stream.names)

	NewProgressReporter(stream, nil, nil)
	assert.Empty(t, stream.names)
}
