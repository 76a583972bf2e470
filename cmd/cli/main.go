package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/config"
	"github.com/edulens/edulens-api/internal/database"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/internal/timeutil"
	"github.com/edulens/edulens-api/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Interactive output owns stdout; structured logs go to stderr.
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.RubricSet{}, &models.Submission{}, &models.BluebookRecord{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	model, err := ai.NewClient(ai.Config{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		VisionModel: cfg.LLMVisionModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create model client: %v", err)
	}

	rubricSetRepo := repository.NewRubricSetRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	rubricService := service.NewRubricService(rubricSetRepo, model, logger)
	submissionService := service.NewSubmissionService(submissionRepo, rubricSetRepo, model, nil, nil, nil, logger)

	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)

	fmt.Println("EduLens grading CLI")
	fmt.Println()
	fmt.Println("Select mode:")
	fmt.Println("  1. Teacher: create or update a rubric set")
	fmt.Println("  2. Student: submit a report for grading")

	switch prompt(in, "\nEnter 1 or 2: ") {
	case "1":
		err = runTeacher(ctx, in, rubricService)
	case "2":
		err = runStudent(ctx, in, rubricService, submissionService, submissionRepo)
	default:
		err = errors.New("invalid choice, run again and pick 1 or 2")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runTeacher extracts criteria from a rubric document and upserts the set,
// then prints the ID students need for their submissions.
func runTeacher(ctx context.Context, in *bufio.Scanner, rubrics service.RubricService) error {
	fmt.Println("\n[teacher] create or update a rubric set")

	path := promptPath(in, "Rubric file path (pdf or txt): ")
	if path == "" {
		return errors.New("a rubric file is required")
	}

	deadline, err := timeutil.ParseDeadlineIST(prompt(in, "Submission deadline (YYYY-MM-DD HH:MM in IST, blank for none): "))
	if err != nil {
		return err
	}

	var maxAttempts *int
	if raw := prompt(in, "Max attempts per student (blank for unlimited): "); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			return fmt.Errorf("max attempts must be a positive integer, got %q", raw)
		}
		maxAttempts = &n
	}

	fmt.Println("\nExtracting criteria from the rubric document...")
	outcome, err := rubrics.CreateFromDocument(ctx, service.CreateRubricInput{
		Path:        path,
		Deadline:    deadline,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return err
	}

	set := outcome.Set
	fmt.Printf("\nRubric set %s.\n", outcome.Operation)
	fmt.Printf("  Rubric set ID:  %s\n", set.RubricSetID)
	if set.Deadline != nil {
		fmt.Printf("  Deadline (IST): %s\n", timeutil.FormatIST(*set.Deadline))
		fmt.Printf("  Deadline (UTC): %s\n", set.Deadline.UTC().Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Println("  Deadline:       none, submissions stay open")
	}
	if set.MaxAttempts != nil {
		fmt.Printf("  Max attempts:   %d\n", *set.MaxAttempts)
	} else {
		fmt.Println("  Max attempts:   unlimited")
	}
	fmt.Printf("  Criteria:       %d\n", set.CriteriaCount)
	fmt.Println("\nShare the rubric set ID with students so they can submit against it.")
	return nil
}

// runStudent shows the stored deadline and attempt state for a rubric set,
// then grades one report against it and prints the full result.
func runStudent(ctx context.Context, in *bufio.Scanner, rubrics service.RubricService, submissions service.SubmissionService, records repository.SubmissionRepository) error {
	fmt.Println("\n[student] submit a report for grading")

	setID := prompt(in, "Rubric set ID (shared by your teacher): ")
	if setID == "" {
		return errors.New("a rubric set ID is required")
	}

	set, err := rubrics.Get(ctx, setID)
	if err != nil {
		return err
	}

	fmt.Printf("\nRubric set %q loaded (%d criteria).\n", set.Title, set.CriteriaCount)
	if set.Deadline != nil {
		fmt.Printf("  Deadline (IST): %s\n", timeutil.FormatIST(*set.Deadline))
	} else {
		fmt.Println("  Deadline:       none, submissions stay open")
	}
	if set.MaxAttempts != nil {
		fmt.Printf("  Max attempts:   %d\n", *set.MaxAttempts)
	} else {
		fmt.Println("  Max attempts:   unlimited")
	}

	studentID := prompt(in, "\nStudent ID: ")
	if studentID == "" {
		return errors.New("a student ID is required")
	}

	used := 0
	if record, recErr := records.Get(ctx, studentID, set.RubricSetID); recErr == nil {
		used = record.AttemptNumber
	} else if !errors.Is(recErr, gorm.ErrRecordNotFound) {
		return recErr
	}
	if set.MaxAttempts != nil {
		fmt.Printf("Attempts used: %d of %d\n", used, *set.MaxAttempts)
	} else {
		fmt.Printf("Attempts used: %d (unlimited)\n", used)
	}

	path := promptPath(in, "\nReport file path (pdf or txt): ")
	if path == "" {
		return errors.New("a report file is required")
	}

	fmt.Println("\nGrading the report, this can take a moment...")
	outcome, err := submissions.SubmitForGrading(ctx, service.SubmitInput{
		StudentID:   studentID,
		RubricSetID: set.RubricSetID,
		ReportPath:  path,
		Filename:    filepath.Base(path),
	})
	if err != nil {
		return err
	}

	limit := "unlimited"
	if set.MaxAttempts != nil {
		limit = strconv.Itoa(*set.MaxAttempts)
	}
	fmt.Println("\nEvaluation complete.")
	fmt.Printf("  Student ID:    %s\n", studentID)
	fmt.Printf("  Rubric set ID: %s\n", set.RubricSetID)
	fmt.Printf("  Attempt:       %d of %s\n", outcome.AttemptNumber, limit)
	fmt.Printf("  Total score:   %.2f / %.0f\n", outcome.Result.TotalScore, outcome.Result.MaxScore)
	fmt.Printf("  Operation:     %s\n", outcome.Operation)

	detail, err := json.MarshalIndent(outcome.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println("\nDetailed rubric feedback:")
	fmt.Println(string(detail))
	return nil
}

func prompt(in *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}

// promptPath keeps asking until it gets a path that exists; a blank line
// cancels and returns "".
func promptPath(in *bufio.Scanner, label string) string {
	for {
		path := prompt(in, label)
		if path == "" {
			return ""
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Printf("file not found at %q, check the path\n", path)
			continue
		}
		return path
	}
}
