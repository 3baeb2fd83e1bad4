package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/naming"
)

var canonCmd = &cobra.Command{
	Use:   "canon <name>...",
	Short: "Show the canonical forms of names",
	Long: `Show how names are canonicalized into keys.

Accented Latin letters fold to their base letter and everything that is not
an ASCII letter or digit is dropped. KEY mode preserves case, DISPLAY mode
capitalizes each word.

Examples:
  rollcall canon "José Núñez" "o'brien"
  rollcall canon --members "Ana, Bea , ana"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCanon,
}

func init() {
	rootCmd.AddCommand(canonCmd)

	canonCmd.Flags().Bool("members", false, "Treat each argument as a comma-separated member list and show the deduplicated keys")
}

func runCanon(cmd *cobra.Command, args []string) error {
	if mustGetBool(cmd, "members") {
		keys := naming.SplitMembers(strings.Join(args, ","))
		rows := make([][]string, len(keys))
		for i, key := range keys {
			rows[i] = []string{fmt.Sprintf("%d", i+1), key}
		}
		fmt.Println(renderTable([]string{"#", "Key"}, rows, []columnAlignment{alignRight, alignLeft}))
		return nil
	}

	rows := make([][]string, len(args))
	for i, raw := range args {
		key := naming.Key(raw)
		if key == "" {
			key = "(empty)"
		}
		rows[i] = []string{raw, key, naming.CanonicalizeName(raw, naming.DisplayMode)}
	}
	fmt.Println(renderTable([]string{"Input", "Key", "Display"}, rows, nil))
	return nil
}
