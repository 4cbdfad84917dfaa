package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/threadgraph/model"
	"github.com/dhcgn/threadgraph/stats"
	"github.com/dhcgn/threadgraph/store"
)

var (
	reportDir string
	topN      int
)

// Report categories, in print order.
const (
	reportSenders      = "Senders"
	reportParticipants = "Participants"
	reportSubjects     = "Subjects"
	reportGroups       = "Groups"
)

var reportCategories = []string{reportSenders, reportParticipants, reportSubjects, reportGroups}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the most active senders, participants, subjects and groups",
	Long: `Count emails per sender, participant, subject and group and save the
counts as CSV. The reconciled tables are used when they exist, otherwise
the online tables written by ingest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.close()

		ctx := cmd.Context()
		counter, source, err := buildReport(ctx, sess.store)
		if err != nil {
			return err
		}

		fmt.Printf("Report over %s tables\n\n", source)
		for _, category := range reportCategories {
			pterm.DefaultSection.Printf("Top %d %s", topN, category)
			if err := stats.PrettyPrintTop(counter[category], topN); err != nil {
				sess.logger.Debug("render report", "category", category, "err", err)
			}
		}

		if err := saveCSVReports(counter, reportCategories, reportDir, 1000); err != nil {
			return fmt.Errorf("error saving CSV reports: %w", err)
		}
		fmt.Printf("Reports saved to directory: %s\n", reportDir)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	reportCmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	rootCmd.AddCommand(reportCmd)
}

// buildReport counts emails per category. It prefers the reconciled tables
// and reports which set it read.
func buildReport(ctx context.Context, s *store.Store) (map[string]map[string]int, string, error) {
	emailTable, userTable, groupTable, source := store.TableEmailUpdated, store.TableUserUpdated, store.TableGroupsUpdated, "reconciled"
	if n, err := countIfExists(ctx, s, store.TableEmailUpdated); err != nil {
		return nil, "", err
	} else if n == 0 {
		emailTable, userTable, groupTable, source = store.TableEmail, store.TableUser, store.TableGroup, "online"
	}

	emails, err := s.ReadEmails(ctx, emailTable)
	if err != nil {
		return nil, "", err
	}
	users, err := s.ReadUsers(ctx, userTable)
	if err != nil {
		return nil, "", err
	}
	groups, err := s.ReadGroups(ctx, groupTable)
	if err != nil {
		return nil, "", err
	}
	return countReport(emails, users, groups), source, nil
}

func countIfExists(ctx context.Context, s *store.Store, t store.Table) (int, error) {
	ok, err := s.Exists(ctx, t)
	if err != nil || !ok {
		return 0, err
	}
	return s.Count(ctx, t)
}

func countReport(emails []model.EmailRow, users []model.PersonProfile, groups []model.Group) map[string]map[string]int {
	labels := make(map[int]string, len(users))
	for _, u := range users {
		labels[u.ID] = userLabel(u)
	}
	label := func(id int) string {
		if l, ok := labels[id]; ok {
			return l
		}
		return "#" + strconv.Itoa(id)
	}
	members := make(map[int][]int, len(groups))
	for _, g := range groups {
		members[g.ID] = g.Members
	}

	counter := make(map[string]map[string]int, len(reportCategories))
	for _, c := range reportCategories {
		counter[c] = make(map[string]int)
	}
	for _, e := range emails {
		if e.SenderID != model.NoID {
			counter[reportSenders][label(e.SenderID)]++
		}
		if e.Subject != "" {
			counter[reportSubjects][e.Subject]++
		}
		if ids, ok := members[e.GroupID]; ok {
			counter[reportGroups][fmt.Sprintf("group %d (%d members)", e.GroupID, len(ids))]++
			for _, id := range ids {
				counter[reportParticipants][label(id)]++
			}
		}
	}
	return counter
}

func userLabel(u model.PersonProfile) string {
	if u.HasName() {
		return u.FirstName + " " + u.LastName
	}
	if len(u.Aliases) > 0 {
		return u.Aliases[0]
	}
	return "#" + strconv.Itoa(u.ID)
}

func saveCSVReports(counter map[string]map[string]int, categories []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, category := range categories {
		filename := fmt.Sprintf("report_%s.csv", normalizeCategoryName(category))
		file, err := os.Create(filepath.Join(dir, filename))
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)
		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}
		for _, p := range stats.Top(counter[category], limit) {
			if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		if err := writer.Error(); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}

	return nil
}

func normalizeCategoryName(category string) string {
	name := strings.ToLower(category)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
