package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/veriface/attendance/internal/catalog"
	"github.com/veriface/attendance/internal/config"
	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/database/postgres"
)

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Manage class sessions",
}

var classesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled class sessions",
	Long:  `Lists class sessions, optionally filtered by subject, teacher, or day.`,
	RunE:  runClassesList,
}

var classesCreateCmd = &cobra.Command{
	Use:   "create [subject-id]",
	Short: "Schedule a new class session",
	Long: `Schedules a class session for a catalog subject. The subject name and
department are resolved from the subject catalog; overlapping sessions
for the same subject are rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassesCreate,
}

func init() {
	rootCmd.AddCommand(classesCmd)
	classesCmd.AddCommand(classesListCmd)
	classesCmd.AddCommand(classesCreateCmd)

	classesListCmd.Flags().String("subject", "", "Filter by subject ID")
	classesListCmd.Flags().String("teacher", "", "Filter by teacher ID")
	classesListCmd.Flags().String("day", "", "Filter by calendar day (YYYY-MM-DD)")

	classesCreateCmd.Flags().String("teacher", "", "Teacher ID for the session")
	classesCreateCmd.Flags().String("start", "", "Session start time (RFC 3339)")
	classesCreateCmd.Flags().String("end", "", "Session end time (RFC 3339)")
}

// openClassStore connects to the database and returns the class store
// together with the pool so callers can close it.
func openClassStore(cfg *config.Config) (*postgres.Pool, *postgres.ClassStore, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, postgres.NewClassStore(pool), nil
}

func runClassesList(cmd *cobra.Command, args []string) error {
	pool, classes, err := openClassStore(config.Load())
	if err != nil {
		return err
	}
	defer pool.Close()

	filter := database.ClassFilter{
		SubjectID: mustGetString(cmd, "subject"),
		TeacherID: mustGetString(cmd, "teacher"),
	}
	if day := mustGetString(cmd, "day"); day != "" {
		d, err := time.Parse("2006-01-02", day)
		if err != nil {
			return fmt.Errorf("invalid --day %q, expected YYYY-MM-DD", day)
		}
		filter.Day = d
	}

	sessions, err := classes.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list class sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No class sessions found")
		return nil
	}

	now := time.Now()
	for _, c := range sessions {
		marker := " "
		if c.Ongoing(now) {
			marker = "*"
		}
		fmt.Printf("%s %-36s  %-10s  %-30s  %s - %s\n",
			marker, c.ID, c.SubjectID, c.SubjectName,
			c.StartTime.Local().Format("2006-01-02 15:04"),
			c.EndTime.Local().Format("15:04"))
	}
	fmt.Printf("\n%d sessions (* = ongoing)\n", len(sessions))
	return nil
}

func runClassesCreate(cmd *cobra.Command, args []string) error {
	subjectID := args[0]

	teacherID := mustGetString(cmd, "teacher")
	startArg := mustGetString(cmd, "start")
	endArg := mustGetString(cmd, "end")
	if teacherID == "" || startArg == "" || endArg == "" {
		return errors.New("--teacher, --start and --end are required")
	}

	start, err := time.Parse(time.RFC3339, startArg)
	if err != nil {
		return fmt.Errorf("invalid --start %q: %w", startArg, err)
	}
	end, err := time.Parse(time.RFC3339, endArg)
	if err != nil {
		return fmt.Errorf("invalid --end %q: %w", endArg, err)
	}
	if !end.After(start) {
		return errors.New("session end must be after start")
	}

	cfg := config.Load()
	subject := catalog.New(cfg.Subjects).Lookup(subjectID)
	if subject == nil {
		return fmt.Errorf("unknown subject %q", subjectID)
	}

	pool, classes, err := openClassStore(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	class := database.StoredClass{
		ID:          uuid.NewString(),
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		Department:  subject.Department,
		TeacherID:   teacherID,
		StartTime:   start,
		EndTime:     end,
	}
	if err := classes.Create(context.Background(), class); err != nil {
		if errors.Is(err, database.ErrSessionConflict) {
			return fmt.Errorf("subject %s already has a session overlapping that window", subject.ID)
		}
		return fmt.Errorf("failed to create class session: %w", err)
	}

	fmt.Printf("Created class session %s\n", class.ID)
	fmt.Printf("  Subject: %s (%s)\n", subject.Name, subject.ID)
	fmt.Printf("  Window:  %s - %s\n",
		start.Local().Format("2006-01-02 15:04"), end.Local().Format("15:04"))
	return nil
}
