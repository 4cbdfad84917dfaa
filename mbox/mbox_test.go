package mbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/threadgraph/model"
)

const archive = "From MAILER-DAEMON Mon May 14 16:39:00 2001\n" +
	"Date: Mon, 14 May 2001 16:39:00 -0700 (PDT)\n" +
	"From: john.doe@enron.com\n" +
	"To: jane.roe@enron.com\n" +
	"Subject: Q2 budget\n" +
	"X-bcc: \n" +
	"\n" +
	"Numbers attached.\n" +
	"\n" +
	"From MAILER-DAEMON Tue May 15 09:00:00 2001\n" +
	"Date: Tue, 15 May 2001 09:00:00 -0700 (PDT)\n" +
	"From: jane.roe@enron.com\n" +
	"To: john.doe@enron.com\n" +
	"Subject: Re: Q2 budget\n" +
	"X-bcc: \n" +
	"\n" +
	"Thanks.\n"

func collect(t *testing.T, path string) ([]model.Envelope, error) {
	t.Helper()
	reader, err := NewReader(Options{Path: path}, nil)
	require.NoError(t, err)

	out := make(chan model.Envelope, 10)
	done := make(chan error, 1)
	go func() {
		done <- reader.Stream(context.Background(), out)
		close(out)
	}()

	var envs []model.Envelope
	for env := range out {
		envs = append(envs, env)
	}
	return envs, <-done
}

func TestStream_OneThreadPerMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.mbox")
	require.NoError(t, os.WriteFile(path, []byte(archive), 0o644))

	envs, err := collect(t, path)
	require.NoError(t, err)
	require.Len(t, envs, 2)

	for i, env := range envs {
		assert.NoError(t, env.Err)
		assert.True(t, strings.HasSuffix(env.Thread.Source, []string{"#0", "#1"}[i]))
	}
	assert.Contains(t, string(envs[0].Thread.Raw), "Numbers attached.")
	assert.Contains(t, string(envs[1].Thread.Raw), "Subject: Re: Q2 budget")

	n, err := CountMessages(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStream_Canceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.mbox")
	require.NoError(t, os.WriteFile(path, []byte(archive), 0o644))

	reader, err := NewReader(Options{Path: path}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan model.Envelope)
	assert.ErrorIs(t, reader.Stream(ctx, out), context.Canceled)
}

func TestStream_MissingFile(t *testing.T) {
	_, err := collect(t, filepath.Join(t.TempDir(), "missing.mbox"))
	assert.Error(t, err)
}

func TestNewReader_EmptyPath(t *testing.T) {
	_, err := NewReader(Options{Path: "  "}, nil)
	assert.Error(t, err)
}
