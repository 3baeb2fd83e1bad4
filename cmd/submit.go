package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

var submitCmd = &cobra.Command{
	Use:   "submit <picture>",
	Short: "Take attendance from a group picture",
	Long: `Match a group picture against a course roster and merge the recognized
students into the attendance record for a session label. Submitting more
pictures under the same label only ever adds students.

Examples:
  rollcall submit class.jpg --owner profe --course Math --label "Week 1"
  rollcall submit class.jpg --owner profe --course Math --label Week1 --threshold 60 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String("owner", "", "Owner name (required)")
	submitCmd.Flags().String("course", "", "Course name (required)")
	submitCmd.Flags().String("label", "", "Session label, e.g. a date or week (required)")
	submitCmd.Flags().Float64("threshold", 0, "Similarity threshold 0-100, overrides MATCH_SIMILARITY_THRESHOLD")
	submitCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	threshold := mustGetFloat64(cmd, "threshold")
	jsonOutput := mustGetBool(cmd, "json")

	picture, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read picture: %w", err)
	}

	a, err := openApp(ctx, func(cfg *config.Config) {
		if threshold > 0 {
			cfg.Matcher.SimilarityThreshold = threshold
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	owner, err := a.resolveOwner(ctx, mustGetString(cmd, "owner"))
	if err != nil {
		return err
	}
	sub, err := a.service.Submit(ctx, owner, mustGetString(cmd, "course"), mustGetString(cmd, "label"), picture)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputSubmitJSON(sub.BatchID, sub.Label, sub.PresentMembers, sub.RecordMembers, sub.WasNewRecord, sub.Diagnostics)
	}

	state := "updated"
	if sub.WasNewRecord {
		state = "created"
	}
	fmt.Printf("Batch %s: record %q %s\n", sub.BatchID, sub.Label, state)
	if len(sub.PresentMembers) == 0 {
		fmt.Println("Nobody recognized in this picture")
	} else {
		fmt.Printf("Recognized: %s\n", strings.Join(sub.PresentMembers, ", "))
	}
	fmt.Printf("Present in record: %d\n\n", len(sub.RecordMembers))

	rows := make([][]string, len(sub.Diagnostics))
	for i, m := range sub.Diagnostics {
		detail := ""
		if m.Err != nil {
			detail = m.Err.Error()
		}
		rows[i] = []string{m.Key, string(m.Outcome), fmt.Sprintf("%d ms", m.Duration.Milliseconds()), detail}
	}
	fmt.Println(renderTable(
		[]string{"Member", "Outcome", "Took", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

type submitDiagnostic struct {
	Key        string `json:"key"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func outputSubmitJSON(batchID, label string, present, record []string, created bool, members []matcher.MemberResult) error {
	diagnostics := make([]submitDiagnostic, len(members))
	for i, m := range members {
		diagnostics[i] = submitDiagnostic{Key: m.Key, Outcome: string(m.Outcome), DurationMs: m.Duration.Milliseconds()}
		if m.Err != nil {
			diagnostics[i].Error = m.Err.Error()
		}
	}
	if present == nil {
		present = []string{}
	}
	if record == nil {
		record = []string{}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"batch_id":        batchID,
		"label":           label,
		"present_members": present,
		"record_members":  record,
		"was_new_record":  created,
		"diagnostics":     diagnostics,
	})
}
