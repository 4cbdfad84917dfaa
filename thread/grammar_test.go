package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasRules(t *testing.T) {
	tests := []struct {
		rule AliasRule
		text string
		want []string
	}{
		{AddressList, "a@enron.com, b@enron.com", []string{"a@enron.com", "b@enron.com"}},
		{AddressList, "a@enron.com,\n\tb@enron.com", []string{"a@enron.com", "b@enron.com"}},
		{AddressList, "undisclosed-recipients", nil},
		{DisplayNames, "Doe, John </O=ENRON/OU=NA/CN=RECIPIENTS/CN=JDOE>, Roe, Jane M. </O=ENRON/CN=JROE>", []string{"Doe, John", "Roe, Jane M."}},
		{DisplayNames, "pallen70@hotmail.com, jane@roe.org", []string{"pallen70@hotmail.com", "jane@roe.org"}},
		{DisplayNames, "Phillip K Allen", nil},
		{DisplayNames, "Bob Smith <bsmith@aol.com>", []string{"bsmith@aol.com"}},
		{DisplayNames, "Doe, John <jdoe@aol.com>, Roe, Jane </O=ENRON/CN=JROE>", []string{"Doe, John", "jdoe@aol.com", "Roe, Jane"}},
		{DisplayNames, "", nil},
		{QuotedRecipients, "Doe, John; Smith, Bob (ECT)", []string{"Doe, John", "Smith, Bob"}},
		{QuotedRecipients, "Doe, John [mailto:john.doe@enron.com]", []string{"john.doe@enron.com"}},
		{QuotedRecipients, "Doe, John\n   Cc: Roe, Jane", []string{"Doe, John", "Roe, Jane"}},
		{QuotedRecipients, "Trading Desk", []string{"Trading Desk"}},
	}
	for _, tt := range tests {
		t.Run(tt.rule.Name+"/"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Extract(tt.text))
		})
	}
}

func TestFirstAliasFallsBackToText(t *testing.T) {
	assert.Equal(t, "Phillip K Allen", firstAlias(DisplayNames, " Phillip K Allen "))
	assert.Equal(t, "Doe, John", firstAlias(DisplayNames, "Doe, John </O=ENRON>"))
	assert.Equal(t, "", firstAlias(DisplayNames, "  "))
}

func TestStripQuoteMarkers(t *testing.T) {
	assert.Equal(t, "one\ntwo\n  three\n", stripQuoteMarkers("> one\n>> two\n  three\n"))
}

func TestCleanDate(t *testing.T) {
	assert.Equal(t, "Mon, 14 May 2001 16:39:00 -0700", cleanDate(" Mon, 14 May 2001 16:39:00 -0700 (PDT) "))
	assert.Equal(t, "Mon, 14 May 2001 16:39:00 (PDT)", cleanDate("Mon, 14 May 2001 16:39:00 (PDT)"), "abbreviation is kept without an offset")
}

func TestParseParentDate(t *testing.T) {
	got, err := ParseParentDate("Wed, 3 Oct 2001 08:05:00 -0500 (CDT)")
	require.NoError(t, err)
	_, offset := got.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.Equal(t, 8, got.Hour())

	_, err = ParseParentDate("  ")
	assert.ErrorIs(t, err, ErrMissingDate)
}

func TestParseQuotedDate(t *testing.T) {
	loc := time.FixedZone("-0500", -5*3600)
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"Wednesday, October 03, 2001 7:41 AM", time.Date(2001, 10, 3, 7, 41, 0, 0, loc)},
		{"10/3/2001 7:41:12 PM", time.Date(2001, 10, 3, 19, 41, 12, 0, loc)},
		{"2001-10-03 07:41:00", time.Date(2001, 10, 3, 7, 41, 0, 0, loc)},
		// own offset is ignored, wall clock is kept
		{"Wed, 3 Oct 2001 07:41:00 -0700 (PDT)", time.Date(2001, 10, 3, 7, 41, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseQuotedDate(tt.raw, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestCanonicalize(t *testing.T) {
	raw := []byte("Message-ID: <1@thyme>\nSubject: long=\n line\nX-Folder: \\a\\b\nBody caf=E9 =3D ok\n")
	got := Canonicalize(raw)
	assert.Equal(t, "Subject: long line\nBody café = ok\n", got)
	assert.Equal(t, Hash(got), Hash(Canonicalize(raw)))
}

func TestCanonicalize_KeepsUTF8(t *testing.T) {
	assert.Equal(t, "Grüße\n", Canonicalize([]byte("Grüße\n")))
}
