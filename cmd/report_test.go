package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/threadgraph/model"
)

func TestCountReport(t *testing.T) {
	users := []model.PersonProfile{
		{ID: 0, FirstName: "john", LastName: "doe"},
		{ID: 1, Aliases: []string{"trader@aol.com"}},
	}
	groups := []model.Group{{ID: 0, Members: []int{0, 1}}}
	emails := []model.EmailRow{
		{Hash: "a", GroupID: 0, SenderID: 0, Subject: "Q2 budget"},
		{Hash: "b", GroupID: 0, SenderID: 5, Subject: "Q2 budget"},
		{Hash: "c", GroupID: model.NoID, SenderID: model.NoID},
	}

	counter := countReport(emails, users, groups)

	assert.Equal(t, map[string]int{"john doe": 1, "#5": 1}, counter[reportSenders])
	assert.Equal(t, map[string]int{"john doe": 2, "trader@aol.com": 2}, counter[reportParticipants])
	assert.Equal(t, map[string]int{"Q2 budget": 2}, counter[reportSubjects])
	assert.Equal(t, map[string]int{"group 0 (2 members)": 2}, counter[reportGroups])
}

func TestSaveCSVReports(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	counter := map[string]map[string]int{
		reportSenders: {"john doe": 3, "jane roe": 5, "bob smith": 1},
	}

	require.NoError(t, saveCSVReports(counter, []string{reportSenders}, dir, 2))

	data, err := os.ReadFile(filepath.Join(dir, "report_senders.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Value,Count\njane roe,5\njohn doe,3\n", string(data))
}

func TestNormalizeCategoryName(t *testing.T) {
	assert.Equal(t, "top_senders", normalizeCategoryName("Top Senders"))
	assert.Equal(t, "e_mail", normalizeCategoryName("E-Mail"))
}
