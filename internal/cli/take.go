package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"edu-assessment-service/internal/client"
	"edu-assessment-service/internal/config"
	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/infra/file"
	infraredis "edu-assessment-service/internal/infra/redis"
	"edu-assessment-service/internal/logger"
	"edu-assessment-service/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type takeOptions struct {
	server         string
	distributionID string
	takerID        string
	code           string
	stateFile      string
}

// NewTakeCmd runs an attempt interactively in the terminal.
func NewTakeCmd(configPath *string) *cobra.Command {
	opts := takeOptions{}
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a distributed exam from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runTake(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "ws://localhost:8080", "assessment server URL")
	cmd.Flags().StringVar(&opts.distributionID, "distribution", "", "distribution ID")
	cmd.Flags().StringVar(&opts.takerID, "taker", "", "test-taker ID")
	cmd.Flags().StringVar(&opts.code, "code", "", "access code, if the distribution has one")
	cmd.Flags().StringVar(&opts.stateFile, "state-file", "", "deadline state file (overrides config)")
	_ = cmd.MarkFlagRequired("distribution")
	_ = cmd.MarkFlagRequired("taker")
	return cmd
}

func runTake(ctx context.Context, cfg config.Config, opts takeOptions, in io.Reader, out io.Writer) error {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, closeStore, err := deadlineStore(cfg, opts)
	if err != nil {
		return err
	}
	defer closeStore()

	gw, err := client.Dial(ctx, opts.server, opts.distributionID, opts.takerID, opts.code)
	if err != nil {
		return err
	}
	defer gw.Close()

	scanner := bufio.NewScanner(in)
	p := &printer{w: out}
	var attempt *session.Attempt
	attempt, err = session.Open(ctx, gw, store, opts.distributionID, opts.takerID, session.Options{
		Log: log,
		Confirm: func() bool {
			unsaved := ""
			if n := len(attempt.Answers.Unsaved()); n > 0 {
				unsaved = fmt.Sprintf(" (%d unsaved answers will be sent as well)", n)
			}
			p.printf("submit now%s? [y/N] ", unsaved)
			if !scanner.Scan() {
				return false
			}
			return strings.EqualFold(strings.TrimSpace(scanner.Text()), "y")
		},
	})
	if err != nil {
		return err
	}
	return newTerminal(attempt, p, config.TTLDuration(cfg.Session.Tick, time.Second)).run(ctx, scanner)
}

// deadlineStore picks Redis when configured so a taker can move between machines, else a local file.
func deadlineStore(cfg config.Config, opts takeOptions) (session.DeadlineStore, func(), error) {
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		grace := config.TTLDuration(cfg.Redis.DeadlineGrace, time.Hour)
		return infraredis.NewDeadlineStore(rdb, grace), func() { _ = rdb.Close() }, nil
	}
	path := opts.stateFile
	if path == "" {
		path = cfg.Session.StateFile
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve state dir: %w", err)
		}
		path = filepath.Join(home, ".assessment", "deadlines.yaml")
	}
	return file.NewDeadlineStore(path), func() {}, nil
}

type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// terminal is the line-oriented attempt UI.
type terminal struct {
	attempt *session.Attempt
	out     *printer
	tick    time.Duration
	running bool
}

func newTerminal(a *session.Attempt, out *printer, tick time.Duration) *terminal {
	return &terminal{attempt: a, out: out, tick: tick}
}

func (t *terminal) run(ctx context.Context, scanner *bufio.Scanner) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := t.attempt.Detail
	t.out.printf("%s (%s) - %d questions, %d minutes\n", d.Title, d.ClassName, len(d.Questions), d.DurationMinutes)
	if t.attempt.Clock.Phase() == session.PhaseDoing {
		t.out.printf("resuming, %s left\n", t.attempt.Clock.Remaining().Round(time.Second))
		t.startTicker(ctx)
	} else {
		t.out.printf("type 'start' to begin\n")
	}

	for {
		t.out.printf("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		quit, err := t.exec(ctx, strings.TrimSpace(scanner.Text()))
		if err != nil {
			t.out.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (t *terminal) exec(ctx context.Context, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		t.out.printf("commands: start, list, show N, answer N VALUE, save N, flag N, time, submit, retry, quit\n")
	case "start":
		deadline, err := t.attempt.Start(ctx)
		if err != nil {
			return false, err
		}
		t.out.printf("started, deadline %s\n", deadline.Local().Format(time.Kitchen))
		t.startTicker(ctx)
	case "list":
		t.list()
	case "show":
		q, _, err := t.question(rest)
		if err != nil {
			return false, err
		}
		t.show(q)
	case "answer":
		idx, value, _ := strings.Cut(strings.TrimSpace(rest), " ")
		q, _, err := t.question(idx)
		if err != nil {
			return false, err
		}
		return false, t.attempt.SetAnswer(q.ID, parseAnswer(q, value))
	case "save":
		q, _, err := t.question(rest)
		if err != nil {
			return false, err
		}
		if err := t.attempt.Commit(ctx, q.ID); err != nil {
			return false, err
		}
		t.out.printf("saved\n")
	case "flag":
		_, i, err := t.question(rest)
		if err != nil {
			return false, err
		}
		if t.attempt.Answers.ToggleFlag(i) {
			t.out.printf("flagged\n")
		} else {
			t.out.printf("unflagged\n")
		}
	case "time":
		if t.attempt.Answers.Locked() {
			t.out.printf("answers are locked\n")
			if t.attempt.Processor.PendingRetry() {
				t.out.printf("the final submission failed, type 'retry'\n")
			}
			return false, nil
		}
		t.out.printf("%s left\n", t.attempt.Clock.Remaining().Round(time.Second))
	case "submit":
		res, err := t.attempt.Submit(ctx)
		if err != nil {
			return false, err
		}
		t.result(res)
		return true, nil
	case "retry":
		res, err := t.attempt.Retry(ctx)
		if err != nil {
			return false, err
		}
		t.result(res)
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
	return false, nil
}

func (t *terminal) startTicker(ctx context.Context) {
	if t.running {
		return
	}
	t.running = true
	go func() {
		_ = t.attempt.Run(ctx, t.tick, func(s session.TickState, err error) {
			if !s.Fired {
				return
			}
			if err != nil {
				t.out.printf("\ntime is up; submission failed: %v\ntype 'retry' to send it again\n", err)
				return
			}
			t.out.printf("\ntime is up; answers submitted\n")
			if s.Result != nil {
				t.result(*s.Result)
			}
		})
	}()
}

func (t *terminal) question(raw string) (domain.TakerQuestion, int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	qs := t.attempt.Detail.Questions
	if err != nil || n < 1 || n > len(qs) {
		return domain.TakerQuestion{}, 0, fmt.Errorf("question number must be 1-%d", len(qs))
	}
	return qs[n-1], n - 1, nil
}

func (t *terminal) list() {
	flagged := make(map[int]bool)
	for _, i := range t.attempt.Answers.Flagged() {
		flagged[i] = true
	}
	for i, q := range t.attempt.Detail.Questions {
		mark := " "
		if v, ok := t.attempt.Answers.Value(q.ID); ok && !v.IsEmpty() {
			mark = "*"
			if t.attempt.Answers.Saved(q.ID) {
				mark = "✓"
			}
		}
		flag := ""
		if flagged[i] {
			flag = " [flagged]"
		}
		t.out.printf("%s %2d. %s%s\n", mark, i+1, q.Content, flag)
	}
}

func (t *terminal) show(q domain.TakerQuestion) {
	t.out.printf("%s (%s)\n", q.Content, q.Type)
	for _, o := range q.Options {
		t.out.printf("  [%s] %s\n", o.ID, o.Text)
	}
	if v, ok := t.attempt.Answers.Value(q.ID); ok {
		if q.Type == domain.TextInput {
			t.out.printf("your answer: %s\n", v.Text)
		} else {
			t.out.printf("your answer: %s\n", strings.Join(v.OptionIDs, ","))
		}
	}
}

func (t *terminal) result(res domain.SubmitResult) {
	verdict := "not passed"
	if res.Passed {
		verdict = "passed"
	}
	t.out.printf("score %.2f%% (%d/%d correct), %s\n", res.Score, res.CorrectCount, res.TotalQuestions, verdict)
}

// parseAnswer reads option ids separated by commas for choice questions, free text otherwise.
func parseAnswer(q domain.TakerQuestion, raw string) domain.AnswerValue {
	if q.Type == domain.TextInput {
		return domain.AnswerValue{Text: strings.TrimSpace(raw)}
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return domain.AnswerValue{OptionIDs: ids}
}
