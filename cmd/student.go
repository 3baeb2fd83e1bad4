package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/naming"
)

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage students and their reference pictures",
}

var studentRegisterCmd = &cobra.Command{
	Use:   "register <name> <picture>",
	Short: "Register a student with a reference picture",
	Args:  cobra.ExactArgs(2),
	RunE:  runStudentRegister,
}

var studentImportCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Register every picture in a directory, named after its file",
	Long: `Register one student per picture in a directory. The file name without
its extension is the student name, so "José Núñez.jpg" registers JoseNunez.

Examples:
  rollcall student import ./roster-pictures
  rollcall student import ./roster-pictures --update`,
	Args: cobra.ExactArgs(1),
	RunE: runStudentImport,
}

var studentUpdateImageCmd = &cobra.Command{
	Use:   "update-image <name> <picture>",
	Short: "Replace a student's reference picture",
	Args:  cobra.ExactArgs(2),
	RunE:  runStudentUpdateImage,
}

var studentShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a registered student",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentShow,
}

func init() {
	rootCmd.AddCommand(studentCmd)
	studentCmd.AddCommand(studentRegisterCmd, studentImportCmd, studentUpdateImageCmd, studentShowCmd)

	studentImportCmd.Flags().Bool("update", false, "Replace the picture of students that are already registered")
}

// pictureExtensions lists the file types the import command picks up.
var pictureExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
}

func runStudentRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	picture, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read picture: %w", err)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.RegisterStudent(ctx, args[0], picture)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s (%s)\n", identity.Key, identity.DisplayName)
	if len(identity.FaceEmbedding) == 0 {
		fmt.Println("Warning: no reference embedding stored, it is computed on each comparison")
	}
	return nil
}

func runStudentImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	update := mustGetBool(cmd, "update")

	entries, err := os.ReadDir(args[0])
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !pictureExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	if len(files) == 0 {
		fmt.Println("No pictures found")
		return nil
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)
	logger.Info("importing students", "dir", args[0], "files", len(files))

	var bar *progressbar.ProgressBar
	if isTerminal(os.Stdout) {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Registering students"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("pictures"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	var registered, updated, skipped int
	var failures [][]string
	for _, file := range files {
		name := strings.TrimSuffix(file, filepath.Ext(file))
		status, err := importStudent(cmd, a, filepath.Join(args[0], file), name, update)
		switch {
		case err != nil:
			logger.Warn("import failed", "file", file, "error", err)
			failures = append(failures, []string{file, err.Error()})
		case status == importRegistered:
			registered++
		case status == importUpdated:
			updated++
		default:
			skipped++
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}

	fmt.Printf("Registered: %d, updated: %d, skipped: %d, failed: %d\n", registered, updated, skipped, len(failures))
	if len(failures) > 0 {
		fmt.Println(renderTable([]string{"File", "Error"}, failures, nil))
	}
	logger.Info("import finished", "registered", registered, "updated", updated, "skipped", skipped, "failed", len(failures))
	return nil
}

type importStatus int

const (
	importSkipped importStatus = iota
	importRegistered
	importUpdated
)

func importStudent(cmd *cobra.Command, a *app, path, name string, update bool) (importStatus, error) {
	if naming.Key(name) == "" {
		return importSkipped, errors.New("file name has no letters or digits")
	}
	picture, err := os.ReadFile(path)
	if err != nil {
		return importSkipped, err
	}

	_, err = a.service.RegisterStudent(cmd.Context(), name, picture)
	if err == nil {
		return importRegistered, nil
	}
	if !errors.Is(err, database.ErrConflict) {
		return importSkipped, err
	}
	if !update {
		return importSkipped, nil
	}
	if err := a.service.UpdateStudentImage(cmd.Context(), name, picture); err != nil {
		return importSkipped, err
	}
	return importUpdated, nil
}

func runStudentUpdateImage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	picture, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read picture: %w", err)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.UpdateStudentImage(ctx, args[0], picture); err != nil {
		return err
	}
	fmt.Printf("Updated reference picture of %s\n", naming.Key(args[0]))
	return nil
}

func runStudentShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.service.GetStudent(ctx, args[0])
	if err != nil {
		return err
	}
	rows := [][]string{
		{"Key", identity.Key},
		{"Name", identity.DisplayName},
		{"Picture", fmt.Sprintf("%s, %d bytes", identity.ImageFormat, len(identity.ReferenceImage))},
		{"Embedding", fmt.Sprintf("%d dimensions", len(identity.FaceEmbedding))},
		{"Registered", identity.CreatedAt.Local().Format("2006-01-02 15:04")},
		{"Updated", identity.UpdatedAt.Local().Format("2006-01-02 15:04")},
	}
	fmt.Println(renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
