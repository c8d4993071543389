package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/bootstrap"
	"github.com/zhouzirui/timemachine/backend/internal/config"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/service/reasoning"
	"github.com/zhouzirui/timemachine/backend/internal/service/session"
	"github.com/zhouzirui/timemachine/backend/pkg/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env loaded, using system environment: %v", err)
	}

	scene := flag.String("scene", "Arrived 30 minutes late to a team meeting", "scene description")
	core := flag.String("emotion", "anger", "core emotion: anger, regret, sadness or guilt")
	actor := flag.String("actor", "Kim", "actor name")
	rules := flag.String("rules", "#cold #authoritative", "actor rules")
	messages := flag.String("messages", "I'm sorry, the bus broke down.|I should have called you.", "user turns separated by |")
	reflection := flag.String("reflection", "I should have explained before apologising.", "reflection to save before the report")
	mode := flag.String("reasoner", "", "override REASONER: http, llm or heuristic")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall timeout")
	verbose := flag.Bool("v", false, "debug logging")

	flag.Parse()

	if *mode != "" {
		os.Setenv("REASONER", *mode)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	zlog, err := logger.New(level, true)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reasoner, err := bootstrap.NewReasoner(ctx, cfg, zlog)
	if err != nil {
		log.Fatalf("failed to initialise reasoner: %v", err)
	}

	svc := session.NewService(scenario.NewMemoryStore(), reasoner, session.Config{
		RollbackFailedTurns: cfg.Session.RollbackFailedTurns,
	}, zlog)

	script := rehearsal{
		Rules: scenario.Rules{
			SceneDescription: *scene,
			CoreEmotion:      scenario.CoreEmotion(*core),
			ActorName:        *actor,
			ActorRules:       *rules,
		},
		Turns:      splitTurns(*messages),
		Reflection: *reflection,
	}

	start := time.Now()
	if err := script.run(ctx, svc, os.Stdout); err != nil {
		zlog.Error("rehearsal failed", zap.Error(err))
		os.Exit(1)
	}
	log.Printf("rehearsal finished in %s using %s reasoner", time.Since(start).Round(time.Millisecond), cfg.Reasoner.Mode)
}

type rehearsal struct {
	Rules      scenario.Rules
	Turns      []string
	Reflection string
}

func (r rehearsal) run(ctx context.Context, svc *session.Service, out io.Writer) error {
	created, err := svc.CreateSession(ctx, r.Rules)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Fprintf(out, "scenario %s\n%s: %s\n", created.ID, r.Rules.ActorName, created.OpeningLine)

	for _, msg := range r.Turns {
		result, err := svc.SubmitTurn(ctx, created.ID, msg)
		if err != nil {
			return fmt.Errorf("turn %q: %w", msg, err)
		}
		fmt.Fprintf(out, "%s: %s\n%s: %s\n", scenario.SenderUser, msg, r.Rules.ActorName, result.Reply)
		fmt.Fprintf(out, "  state %+v\n", result.NewState)
	}

	hint, err := svc.RequestHint(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("hint: %w", err)
	}
	fmt.Fprintf(out, "hint: %s\n", hint.Text)

	if _, err := svc.EndSimulation(ctx, created.ID); err != nil {
		return fmt.Errorf("end simulation: %w", err)
	}
	if strings.TrimSpace(r.Reflection) != "" {
		if err := svc.SaveReflection(ctx, created.ID, r.Reflection); err != nil {
			return fmt.Errorf("save reflection: %w", err)
		}
	}

	for _, kind := range []reasoning.AnalysisKind{reasoning.KindReflectionGuide, reasoning.KindFinalReport} {
		analysis, err := svc.RequestAnalysis(ctx, created.ID, kind)
		if err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
		printAnalysis(out, analysis)
	}
	return nil
}

func printAnalysis(out io.Writer, analysis reasoning.Analysis) {
	if text, ok := analysis.Text(); ok {
		fmt.Fprintf(out, "%s: %s\n", analysis.Kind, text)
		return
	}
	report, ok := analysis.Report()
	if !ok {
		fmt.Fprintf(out, "%s: %s\n", analysis.Kind, analysis.Result)
		return
	}
	fmt.Fprintf(out, "%s: %s\n  trend: %s\n", analysis.Kind, report.Summary, report.EmotionTrend)
	for _, point := range report.LearningPoints {
		fmt.Fprintf(out, "  - %s\n", point)
	}
	fmt.Fprintf(out, "  next: %s\n", report.NextSteps)
}

func splitTurns(raw string) []string {
	var turns []string
	for _, part := range strings.Split(raw, "|") {
		if part = strings.TrimSpace(part); part != "" {
			turns = append(turns, part)
		}
	}
	return turns
}
