package thread

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/threadgraph/state"
)

const sampleThread = `Message-ID: <18782981.1075855378110.JavaMail.evans@thyme>
Date: Mon, 14 May 2001 16:39:00 -0700 (PDT)
From: john.doe@enron.com
To: jane.roe@enron.com, bob.smith@enron.com
Subject: Re: Q2 budget
Mime-Version: 1.0
Content-Type: text/plain; charset=us-ascii
Content-Transfer-Encoding: 7bit
X-From: Doe, John </O=ENRON/OU=NA/CN=RECIPIENTS/CN=JDOE>
X-To: Roe, Jane </O=ENRON/OU=NA/CN=RECIPIENTS/CN=JROE>, bob.smith@enron.com
X-cc:
X-bcc:
X-Folder: \John_Doe_Jun2001\Notes Folders\Sent
X-Origin: Doe-J
X-FileName: jdoe.nsf

Numbers attached.

 -----Original Message-----
From: 	Roe, Jane
Sent:	Monday, May 14, 2001 9:15 AM
To:	Doe, John; Smith, Bob
Subject:	Q2 budget

> Can you send the Q2 numbers?
`

func newTestParser() *Parser {
	return NewParser(state.NewMemoryTracker())
}

func TestParse_ParentAndQuoted(t *testing.T) {
	p := newTestParser()
	res, err := p.Parse(Canonicalize([]byte(sampleThread)))
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.False(t, res.ParentDuplicate)
	assert.Empty(t, res.Dropped)

	parent := res.Messages[0]
	assert.Equal(t, res.ParentHash, parent.Hash)
	assert.Len(t, parent.Hash, 64)
	assert.Equal(t, "Re: Q2 budget", parent.Subject)
	assert.Equal(t, []string{"Roe, Jane", "bob.smith@enron.com", "jane.roe@enron.com"}, parent.Aliases)
	assert.Equal(t, []string{"Doe, John", "john.doe@enron.com"}, parent.Sender)
	assert.Empty(t, parent.ParentHash)

	_, offset := parent.Date.Zone()
	assert.Equal(t, -7*3600, offset)
	assert.True(t, parent.Date.Equal(time.Date(2001, 5, 14, 23, 39, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2001, 5, 14, 12, 0, 0, 0, time.UTC), parent.NormDate)

	quoted := res.Messages[1]
	assert.Equal(t, parent.Hash, quoted.ParentHash)
	assert.Equal(t, "Q2 budget", quoted.Subject)
	assert.Equal(t, []string{"Doe, John", "Smith, Bob"}, quoted.Aliases)
	assert.Equal(t, []string{"Roe, Jane"}, quoted.Sender)
	assert.True(t, quoted.Date.Equal(time.Date(2001, 5, 14, 16, 15, 0, 0, time.UTC)), "quoted wall clock is read in the parent zone")
	assert.Equal(t, Hash("\nCan you send the Q2 numbers?\n"), quoted.Hash)
}

func TestParse_SameParentBodyIsSkipped(t *testing.T) {
	p := newTestParser()
	first, err := p.Parse(Canonicalize([]byte(sampleThread)))
	require.NoError(t, err)

	// Same body reached through another folder with a different header.
	copyText := strings.Replace(sampleThread, "Subject: Re: Q2 budget", "Subject: Fwd: Q2 budget", 1)
	second, err := p.Parse(Canonicalize([]byte(copyText)))
	require.NoError(t, err)

	assert.True(t, second.ParentDuplicate)
	assert.Empty(t, second.Messages)
	assert.Equal(t, first.ParentHash, second.ParentHash)
	assert.Equal(t, first.Location, second.Location, "cached zone is handed back")
}

func TestParse_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{
			name: "missing body marker",
			text: "Date: Mon, 14 May 2001 16:39:00 -0700\nSubject: x\n\nhello\n",
			want: ErrMissingBody,
		},
		{
			name: "missing date",
			text: "Subject: x\nX-bcc: \n\nhello\n",
			want: ErrMissingDate,
		},
		{
			name: "malformed date",
			text: "Date: unknown\nSubject: x\nX-bcc: \n\nhello\n",
			want: ErrMalformedDate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestParser().Parse(tt.text)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_MalformedQuotedDateDropsOnlyThatMessage(t *testing.T) {
	text := strings.Replace(sampleThread, "Sent:\tMonday, May 14, 2001 9:15 AM", "Sent:\tsoon", 1)
	res, err := newTestParser().Parse(Canonicalize([]byte(text)))
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	require.Len(t, res.Dropped, 1)
	assert.ErrorIs(t, res.Dropped[0], ErrMalformedDate)
	assert.Contains(t, res.Dropped[0].Error(), "soon")
}

func TestParse_LastQuotedSegmentIsKept(t *testing.T) {
	text := sampleThread + `
-----Original Message-----
From: Smith, Bob
Sent: 5/13/2001 8:00:00 AM
To: Roe, Jane
Subject: budget

>> first draft
`
	res, err := newTestParser().Parse(Canonicalize([]byte(text)))
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	last := res.Messages[2]
	assert.Equal(t, "budget", last.Subject)
	assert.Equal(t, []string{"Smith, Bob"}, last.Sender)
	assert.True(t, last.Date.Equal(time.Date(2001, 5, 13, 15, 0, 0, 0, time.UTC)))
}

func TestParse_OptionalRecipientsAbsent(t *testing.T) {
	text := "Date: Tue, 1 May 2001 10:00:00 -0500\nFrom: a.b@enron.com\nSubject: hi\nMime-Version: 1.0\nX-From: Bee, Ay\nX-To: \nX-cc: \nX-bcc: \n\nbody\n"
	res, err := newTestParser().Parse(text)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Empty(t, res.Messages[0].Aliases)
	assert.Equal(t, []string{"Bee, Ay", "a.b@enron.com"}, res.Messages[0].Sender)
}

func TestParse_QuotedDateLabelMustStartLine(t *testing.T) {
	text := strings.Replace(sampleThread, "From: \tRoe, Jane", "From: \tRoe, Jane [Q2 Update: final]", 1)
	require.NotEqual(t, sampleThread, text)

	res, err := newTestParser().Parse(Canonicalize([]byte(text)))
	require.NoError(t, err)
	assert.Empty(t, res.Dropped)
	require.Len(t, res.Messages, 2)
	assert.True(t, res.Messages[1].Date.Equal(time.Date(2001, 5, 14, 16, 15, 0, 0, time.UTC)))
}
