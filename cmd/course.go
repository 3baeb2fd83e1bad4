package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/naming"
)

var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Manage an owner's course rosters",
}

var courseCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a course roster",
	Long: `Create a course roster for an owner. Members are given as repeated
--member flags or as one comma-separated --members list.

Examples:
  rollcall course create Math --owner profe --members "Ana, Bea, José Núñez"
  rollcall course create Math --owner profe --member Ana --member Bea`,
	Args: cobra.ExactArgs(1),
	RunE: runCourseCreate,
}

var courseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an owner's courses",
	Args:  cobra.NoArgs,
	RunE:  runCourseList,
}

var courseShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a course roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runCourseShow,
}

var courseDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a course, keeping its attendance records",
	Args:  cobra.ExactArgs(1),
	RunE:  runCourseDelete,
}

func init() {
	rootCmd.AddCommand(courseCmd)
	courseCmd.AddCommand(courseCreateCmd, courseListCmd, courseShowCmd, courseDeleteCmd)

	courseCmd.PersistentFlags().String("owner", "", "Owner name (required)")
	courseCreateCmd.Flags().StringSlice("member", nil, "Roster member name (repeatable)")
	courseCreateCmd.Flags().String("members", "", "Comma-separated roster member names")
}

func runCourseCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	members := append(mustGetStringSlice(cmd, "member"), naming.SplitMembers(mustGetString(cmd, "members"))...)

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	owner, err := a.resolveOwner(ctx, mustGetString(cmd, "owner"))
	if err != nil {
		return err
	}
	course, err := a.service.CreateCourse(ctx, owner, args[0], members)
	if err != nil {
		return err
	}
	fmt.Printf("Created course %s with %d members\n", course.Key, len(course.Members))
	return nil
}

func runCourseList(cmd *cobra.Command, args []string) error {
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
	courses, err := a.service.ListCourses(ctx, owner)
	if err != nil {
		return err
	}
	if len(courses) == 0 {
		fmt.Println("No courses")
		return nil
	}

	rows := make([][]string, len(courses))
	for i, c := range courses {
		rows[i] = []string{c.Key, c.Name, fmt.Sprintf("%d", len(c.Members)), c.CreatedAt.Local().Format("2006-01-02")}
	}
	fmt.Println(renderTable(
		[]string{"Key", "Name", "Members", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func runCourseShow(cmd *cobra.Command, args []string) error {
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
	course, err := a.service.GetCourse(ctx, owner, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", course.Name, course.FullKey)
	if len(course.Members) == 0 {
		fmt.Println("Roster is empty")
		return nil
	}
	fmt.Println(strings.Join(course.Members, ", "))
	return nil
}

func runCourseDelete(cmd *cobra.Command, args []string) error {
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
	if err := a.service.DeleteCourse(ctx, owner, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted course %s\n", naming.Key(args[0]))
	return nil
}
