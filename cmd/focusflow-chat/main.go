// Command focusflow-chat is a terminal study companion: a text chat
// with a research coach, push-to-talk dictation, live voice
// conversation, and replay of spoken replies.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/focusflow/focusflow-go/internal/dotenv"
	"github.com/focusflow/focusflow-go/pkg/chat"
	"github.com/focusflow/focusflow-go/pkg/coach"
	"github.com/focusflow/focusflow-go/pkg/core/live"
)

const defaultAskTimeout = 90 * time.Second

type appConfig struct {
	APIKey      string
	DatabaseURL string
	AskTimeout  time.Duration
	Debug       bool
}

func parseAppConfig(args []string, getenv func(string) string) (appConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := appConfig{}
	fs := flag.NewFlagSet("focusflow-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.DurationVar(&cfg.AskTimeout, "timeout", defaultAskTimeout, "per-question timeout (e.g. 90s)")
	fs.BoolVar(&cfg.Debug, "debug", false, "log live session debug events")

	if err := fs.Parse(args); err != nil {
		return appConfig{}, err
	}

	cfg.APIKey = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(getenv("GOOGLE_API_KEY"))
	}
	cfg.DatabaseURL = strings.TrimSpace(getenv("FOCUSFLOW_DATABASE_URL"))

	if err := validateAppConfig(cfg); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}

func validateAppConfig(cfg appConfig) error {
	if cfg.APIKey == "" {
		return errors.New("missing API key (set GEMINI_API_KEY or GOOGLE_API_KEY)")
	}
	if cfg.AskTimeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

// composerBuffer accumulates dictated text until the next typed send.
type composerBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *composerBuffer) append(fragment string) {
	c.mu.Lock()
	c.buf.WriteString(fragment)
	c.mu.Unlock()
}

func (c *composerBuffer) take() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.buf.String()
	c.buf.Reset()
	return text
}

// archivingSink feeds reconstructed voice turns into the transcript and
// mirrors finalized state into the Postgres archive when one is
// configured.
type archivingSink struct {
	log    *chat.Log
	store  *chat.Store
	errOut io.Writer
}

func (a *archivingSink) Append(msg chat.Message) {
	a.log.Append(msg)
	a.persist(msg.ID)
}

func (a *archivingSink) UpdateByID(id, content string, audio []byte) {
	a.log.UpdateByID(id, content, audio)
	a.persist(id)
}

func (a *archivingSink) persist(id string) {
	if a.store == nil {
		return
	}
	msg, ok := a.log.Get(id)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.Save(ctx, msg); err != nil {
		fmt.Fprintf(a.errOut, "archive error: %v\n", err)
	}
}

type appState struct {
	cfg        appConfig
	log        *chat.Log
	sink       *archivingSink
	coach      *coach.Coach
	controller *live.Controller
	replayer   *live.Replayer
	composer   *composerBuffer

	out    io.Writer
	errOut io.Writer
}

func run(ctx context.Context, cfg appConfig, in io.Reader, out, errOut io.Writer) error {
	if err := validateAppConfig(cfg); err != nil {
		return err
	}

	studyCoach, err := coach.New(ctx, cfg.APIKey)
	if err != nil {
		return err
	}

	log := chat.NewLog()
	sink := &archivingSink{log: log, errOut: errOut}
	if cfg.DatabaseURL != "" {
		store, err := chat.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
		sink.store = store
		fmt.Fprintln(out, "transcript archive enabled")
	}

	mic, err := newMalgoMicrophone()
	if err != nil {
		return err
	}
	defer mic.Close()

	composer := &composerBuffer{}
	state := &appState{
		cfg:      cfg,
		log:      log,
		sink:     sink,
		coach:    studyCoach,
		composer: composer,
		out:      out,
		errOut:   errOut,
	}

	state.controller = live.NewController(live.ControllerConfig{
		APIKey:        cfg.APIKey,
		Microphone:    mic,
		OutputFactory: newPlaybackEngine,
		Sink:          sink,
		OnComposer: func(text string) {
			composer.append(text)
			fmt.Fprint(out, text)
		},
		OnModeChange: func(mode live.Mode) {
			fmt.Fprintf(out, "\n[mode] %s\n", mode)
		},
		OnSessionError: func(err error) {
			fmt.Fprintf(errOut, "session error: %v\n", err)
		},
		Debug: cfg.Debug,
	})
	defer state.controller.Stop()

	state.replayer = live.NewReplayer(newPlaybackEngine, func(playingID string) {
		if playingID != "" {
			fmt.Fprintf(out, "[replay] playing\n")
		}
	})
	defer state.replayer.Stop()

	fmt.Fprintln(out, "FocusFlow study coach ready.")
	fmt.Fprintln(out, "Commands: /dictate /voice /replay <n> /mission <task> /guide <title> :: <desc> /quiz <topic> /fix <query> /log /quit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/exit", "/quit":
			fmt.Fprintln(out, "bye")
			return nil
		}

		if handled, err := handleSlashCommand(ctx, line, state, scanner); err != nil {
			return err
		} else if handled {
			continue
		}

		state.ask(ctx, line)
	}
}

// ask sends a typed message to the research coach. Typed sending stops
// dictation, and any dictated text joins the message.
func (s *appState) ask(ctx context.Context, line string) {
	s.controller.NotifyTypedSend()
	if dictated := s.composer.take(); dictated != "" {
		line = strings.TrimSpace(dictated + " " + line)
	}

	history := s.log.Messages()
	s.sink.Append(chat.Message{ID: uuid.NewString(), Role: chat.RoleUser, Content: line})

	askCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()
	answer, err := s.coach.AskCoach(askCtx, line, history)
	if err != nil {
		fmt.Fprintf(s.errOut, "coach error: %v\n", err)
		return
	}

	fmt.Fprintln(s.out, answer.Text)
	for _, src := range answer.Sources {
		fmt.Fprintf(s.out, "  [source] %s - %s\n", src.Title, src.URI)
	}
	s.sink.Append(chat.Message{
		ID:      uuid.NewString(),
		Role:    chat.RoleAssistant,
		Content: answer.Text,
		Sources: answer.Sources,
	})
}

func handleSlashCommand(ctx context.Context, line string, state *appState, scanner *bufio.Scanner) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/dictate":
		if err := state.controller.ToggleDictation(ctx); err != nil {
			fmt.Fprintf(state.errOut, "dictation error: %v\n", err)
		}
		return true, nil

	case "/voice":
		if err := state.controller.ToggleConversation(ctx); err != nil {
			fmt.Fprintf(state.errOut, "voice error: %v\n", err)
		}
		return true, nil

	case "/replay":
		state.replay(arg)
		return true, nil

	case "/mission":
		if arg == "" {
			fmt.Fprintln(state.errOut, "usage: /mission <task>")
			return true, nil
		}
		state.mission(ctx, arg)
		return true, nil

	case "/guide":
		title, desc, _ := strings.Cut(arg, "::")
		title = strings.TrimSpace(title)
		desc = strings.TrimSpace(desc)
		if title == "" {
			fmt.Fprintln(state.errOut, "usage: /guide <title> :: <description>")
			return true, nil
		}
		state.guide(ctx, title, desc)
		return true, nil

	case "/quiz":
		if arg == "" {
			fmt.Fprintln(state.errOut, "usage: /quiz <topic>")
			return true, nil
		}
		state.quiz(ctx, arg, scanner)
		return true, nil

	case "/fix":
		if arg == "" {
			fmt.Fprintln(state.errOut, "usage: /fix <query> [:: <error message>]")
			return true, nil
		}
		query, errMsg, _ := strings.Cut(arg, "::")
		state.fix(ctx, strings.TrimSpace(query), strings.TrimSpace(errMsg))
		return true, nil

	case "/log":
		for i, msg := range state.log.Messages() {
			marker := " "
			if len(msg.Audio) > 0 {
				marker = "*"
			}
			fmt.Fprintf(state.out, "%2d%s %s: %s\n", i+1, marker, msg.Role, msg.Content)
		}
		return true, nil

	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(state.errOut, "unknown command %s\n", cmd)
			return true, nil
		}
		return false, nil
	}
}

// replay toggles playback of the numbered transcript entry. Entries
// with stored audio are marked with * in /log.
func (s *appState) replay(arg string) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		fmt.Fprintln(s.errOut, "usage: /replay <n> (see /log)")
		return
	}
	msgs := s.log.Messages()
	if n > len(msgs) {
		fmt.Fprintf(s.errOut, "no message %d, transcript has %d\n", n, len(msgs))
		return
	}
	msg := msgs[n-1]
	if len(msg.Audio) == 0 {
		fmt.Fprintf(s.errOut, "message %d has no stored audio\n", n)
		return
	}
	if err := s.replayer.Toggle(msg.ID, msg.Audio); err != nil {
		fmt.Fprintf(s.errOut, "replay error: %v\n", err)
	}
}

func (s *appState) mission(ctx context.Context, task string) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()
	mission, err := s.coach.BreakDownTask(reqCtx, task)
	if err != nil {
		fmt.Fprintf(s.errOut, "mission error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Mission: %s (%d min focus, %d XP)\n", mission.MissionName, mission.FocusTimeMinutes, mission.XPReward)
	for i, step := range mission.Steps {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, step)
	}
	fmt.Fprintln(s.out, mission.Encouragement)
}

func (s *appState) guide(ctx context.Context, title, desc string) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()
	guide, err := s.coach.GenerateStudyGuide(reqCtx, title, desc)
	if err != nil {
		fmt.Fprintf(s.errOut, "guide error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "# %s\n%s\n", guide.Title, guide.Summary)
	for _, section := range guide.Sections {
		fmt.Fprintf(s.out, "\n## %s\n%s\n", section.Heading, section.Content)
	}
	if len(guide.KeyTakeaways) > 0 {
		fmt.Fprintln(s.out, "\nKey takeaways:")
		for _, takeaway := range guide.KeyTakeaways {
			fmt.Fprintf(s.out, "  - %s\n", takeaway)
		}
	}
}

func (s *appState) quiz(ctx context.Context, topic string, scanner *bufio.Scanner) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()
	questions, err := s.coach.GenerateQuiz(reqCtx, topic)
	if err != nil {
		fmt.Fprintf(s.errOut, "quiz error: %v\n", err)
		return
	}

	answers := make([]string, 0, len(questions))
	for i, q := range questions {
		fmt.Fprintf(s.out, "\n%d) %s\n", i+1, q.Question)
		for j, option := range q.Options {
			fmt.Fprintf(s.out, "   %c. %s\n", 'a'+j, option)
		}
		fmt.Fprint(s.out, "answer> ")
		if !scanner.Scan() {
			return
		}
		answers = append(answers, strings.TrimSpace(scanner.Text()))
	}

	evalCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()
	result, err := s.coach.EvaluateQuiz(evalCtx, topic, questions, answers)
	if err != nil {
		fmt.Fprintf(s.errOut, "quiz evaluation error: %v\n", err)
		return
	}

	fmt.Fprintf(s.out, "\nScore: %d/%d\n%s\n", result.Score, result.Total, result.Feedback)
	for _, correction := range result.Corrections {
		if correction.IsCorrect {
			continue
		}
		fmt.Fprintf(s.out, "  %s\n    you said %q, answer is %q: %s\n",
			correction.Question, correction.UserAnswer, correction.CorrectAnswer, correction.Explanation)
	}
}

func (s *appState) fix(ctx context.Context, query, errMsg string) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()
	labFix, err := s.coach.AnalyzeLabQuery(reqCtx, query, errMsg)
	if err != nil {
		fmt.Fprintf(s.errOut, "lab error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "%s\n\n%s\n", labFix.CorrectedQuery, labFix.Explanation)
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "focusflow-chat: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseAppConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "focusflow-chat: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "focusflow-chat: %v\n", err)
		os.Exit(1)
	}
}
