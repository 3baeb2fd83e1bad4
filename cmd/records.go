package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect attendance records of a course",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the attendance records of a course",
	Args:  cobra.NoArgs,
	RunE:  runRecordsList,
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <label>",
	Short: "Show who was present under a session label",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsShow,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd, recordsShowCmd)

	recordsCmd.PersistentFlags().String("owner", "", "Owner name (required)")
	recordsCmd.PersistentFlags().String("course", "", "Course name (required)")
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, err := a.resolveOwner(ctx, mustGetString(cmd, "owner"))
	if err != nil {
		return err
	}
	records, err := a.service.ListRecords(ctx, owner, mustGetString(cmd, "course"))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No attendance records")
		return nil
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = []string{rec.Label, rec.LabelKey, fmt.Sprintf("%d", len(rec.Present)), rec.CapturedAt.Local().Format("2006-01-02 15:04")}
	}
	fmt.Println(renderTable(
		[]string{"Label", "Key", "Present", "Last picture"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func runRecordsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, err := a.resolveOwner(ctx, mustGetString(cmd, "owner"))
	if err != nil {
		return err
	}
	view, err := a.service.GetRecord(ctx, owner, mustGetString(cmd, "course"), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d present\n", view.Record.Label, len(view.Members))
	rows := make([][]string, len(view.Members))
	for i, m := range view.Members {
		rows[i] = []string{m.Key, m.DisplayName}
	}
	fmt.Println(renderTable([]string{"Key", "Name"}, rows, nil))
	return nil
}
