package leaderboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV renders leaderboard entries as a spreadsheet-friendly CSV
// document with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)

	header := []string{"rank", "username", "total_score", "post_count", "avg_score", "bonus_multiplier", "verified"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			strconv.Itoa(e.Rank),
			e.Username,
			strconv.FormatFloat(e.TotalScore, 'f', 2, 64),
			strconv.Itoa(e.PostCount),
			strconv.FormatFloat(e.AvgScore, 'f', 2, 64),
			strconv.FormatFloat(e.BonusMultiplier, 'f', 2, 64),
			strconv.FormatBool(e.Verified),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", e.Rank, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
