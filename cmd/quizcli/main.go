// Command quizcli takes a quiz from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/client"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/session"
)

func main() {
	flags := pflag.NewFlagSet("quizcli", pflag.ExitOnError)
	flags.String("server", "http://localhost:8080", "quiz service base URL")
	flags.String("token", "", "bearer token")
	flags.String("student", "", "student id, used for logging")
	flags.Uint("quiz", 0, "quiz to take; lists available quizzes when 0")
	flags.Bool("verbose", false, "debug logging")
	_ = flags.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("QUIZCLI")
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	level := slog.LevelWarn
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if v.GetString("token") == "" {
		fmt.Fprintln(os.Stderr, "a token is required (--token or QUIZCLI_TOKEN)")
		os.Exit(2)
	}

	api := client.New(
		client.Config{BaseURL: strings.TrimRight(v.GetString("server"), "/"), RetryCount: 2},
		client.Identity{Token: v.GetString("token"), StudentID: v.GetString("student")},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if quizID := v.GetUint("quiz"); quizID == 0 {
		err = listQuizzes(ctx, api)
	} else {
		err = takeQuiz(ctx, api, quizID, logger, os.Stdin, os.Stdout)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func listQuizzes(ctx context.Context, api *client.Client) error {
	quizzes, err := api.ListAvailable(ctx)
	if err != nil {
		return err
	}
	if len(quizzes) == 0 {
		fmt.Println("No quizzes available.")
		return nil
	}
	for _, q := range quizzes {
		limit := "untimed"
		if q.TimeLimit != nil {
			limit = fmt.Sprintf("%d min", *q.TimeLimit)
		}
		open := "opens " + q.StartTime.Local().Format(time.DateTime)
		if q.IsOpen {
			open = "closes " + q.EndTime.Local().Format(time.DateTime)
		}
		fmt.Printf("%4d  %-40s %-8s %s\n", q.ID, q.Title, limit, open)
	}
	return nil
}

func takeQuiz(ctx context.Context, api *client.Client, quizID uint, logger *slog.Logger, in io.Reader, out io.Writer) error {
	view, err := api.GetQuizForAttempt(ctx, quizID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%.2f marks)\n", view.Quiz.Title, view.Quiz.TotalMarks)
	if view.AttemptsRemaining != nil {
		fmt.Fprintf(out, "Attempts left: %d\n", *view.AttemptsRemaining)
	}

	done := make(chan *services.SubmitResponse, 1)
	var lastLevel session.Level
	runner := session.NewRunner(api, quizID, session.Config{
		Logger: logger,
		OnTick: func(remaining time.Duration, level session.Level) {
			// Print on level changes and once a minute
			if level != lastLevel || remaining%time.Minute < time.Second {
				fmt.Fprintf(out, "[%s left, %s]\n", remaining.Truncate(time.Second), level)
				lastLevel = level
			}
		},
		OnAutoSubmit: func(result *services.SubmitResponse, err error) {
			switch {
			case errors.Is(err, session.ErrNotInProgress):
				fmt.Fprintln(out, "The attempt was closed on the server.")
				done <- nil
			case err != nil:
				fmt.Fprintln(out, "Submitting your answers failed, retrying:", err)
			default:
				fmt.Fprintln(out, "Your answers were submitted.")
				done <- result
			}
		},
	})
	defer runner.Close()

	if err := runner.Start(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Fprintln(out, "Answer each question. Multi choice: comma separated. Commands: :submit :quit :abandon")
	questions := runner.Questions()
	for i := 0; ; {
		if i < len(questions) {
			printQuestion(out, questions[i], i+1)
		} else {
			fmt.Fprintln(out, "All questions shown. Type :submit, or a question number to revisit.")
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Interrupted, the attempt stays open and can be resumed.")
			return nil
		case result := <-done:
			if result != nil {
				printResult(out, result)
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "Input closed, the attempt stays open and can be resumed.")
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == ":submit":
				result, err := runner.Submit(ctx)
				if errors.Is(err, session.ErrNotInProgress) {
					fmt.Fprintln(out, "The attempt is no longer open:", err)
					return nil
				}
				if err != nil {
					fmt.Fprintln(out, "Submit failed, try again:", err)
					continue
				}
				printResult(out, result)
				return nil
			case line == ":quit":
				fmt.Fprintln(out, "Leaving, the attempt stays open and can be resumed.")
				return nil
			case line == ":abandon":
				return runner.Abandon(ctx)
			case i >= len(questions):
				var n int
				if _, err := fmt.Sscanf(line, "%d", &n); err == nil && n >= 1 && n <= len(questions) {
					i = n - 1
				}
				continue
			}

			if err := answer(runner, questions[i], line); err != nil {
				if errors.Is(err, session.ErrNotInProgress) {
					continue
				}
				return err
			}
			i++
		}
	}
}

func answer(runner *session.Runner, q models.QuestionView, line string) error {
	if q.Type == models.MultiChoice {
		return runner.AnswerMulti(q.ID, strings.Split(line, ","))
	}
	return runner.Answer(q.ID, line)
}

func printQuestion(out io.Writer, q models.QuestionView, n int) {
	fmt.Fprintf(out, "\nQ%d (%.2f) %s\n", n, q.Marks, q.Text)
	for _, o := range q.Options {
		fmt.Fprintf(out, "  - %s\n", o)
	}
	fmt.Fprint(out, "> ")
}

func printResult(out io.Writer, result *services.SubmitResponse) {
	if result == nil {
		return
	}
	fmt.Fprintf(out, "Score: %.2f / %.2f (%.2f%%)\n", result.Score, result.TotalMarks, result.Percentage)
	for _, b := range result.Breakdown {
		mark := "x"
		if b.Correct {
			mark = "ok"
		}
		fmt.Fprintf(out, "  question %d: %s\n", b.QuestionID, mark)
	}
}
