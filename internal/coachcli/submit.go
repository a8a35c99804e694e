package coachcli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	app "github.com/okian/spinta/internal/app"
	"github.com/okian/spinta/internal/config"
	"github.com/okian/spinta/internal/domain/form"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/internal/domain/upload"
	"github.com/okian/spinta/pkg/logger"
)

const (
	defaultWaitTimeout = 10 * time.Minute
	progressPoll       = 100 * time.Millisecond
	outputPermission   = 0o600
)

type submitOptions struct {
	opponent   string
	date       string
	matchType  string
	homeScore  string
	awayScore  string
	logo       string
	homeLineup string
	awayLineup string
	video      string
	output     string
	confirm    bool
	timeout    time.Duration
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parseSubmit(args []string, out io.Writer) (submitOptions, error) {
	var o submitOptions
	fs := newFlagSet("submit", out)
	fs.StringVar(&o.opponent, "opponent", "", "Opponent team name")
	fs.StringVar(&o.date, "date", "", "Match date (YYYY-MM-DD)")
	fs.StringVar(&o.matchType, "type", "", "home or away")
	fs.StringVar(&o.homeScore, "home-score", "", "Final home score")
	fs.StringVar(&o.awayScore, "away-score", "", "Final away score")
	fs.StringVar(&o.logo, "logo", "", "Opponent logo file")
	fs.StringVar(&o.homeLineup, "home-lineup", "", "Home lineup file")
	fs.StringVar(&o.awayLineup, "away-lineup", "", "Away lineup file")
	fs.StringVar(&o.video, "video", "", "Match video file")
	fs.StringVar(&o.output, "output", "", "Write the events JSON to this file")
	fs.BoolVar(&o.confirm, "confirm", false, "Save the analysis to the backend")
	fs.DurationVar(&o.timeout, "timeout", defaultWaitTimeout, "How long to wait for the analysis")
	if err := fs.Parse(args); err != nil {
		return o, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return o, nil
}

// fillForm copies the options into a match form. Files that cannot be read
// are reported like any other field error.
func fillForm(ctx context.Context, o submitOptions, f *form.Form) {
	f.SetOpponentName(o.opponent)
	f.SetMatchType(o.matchType)
	f.SetScores(o.homeScore, o.awayScore)
	f.SetMatchDateText(o.date)
	for field, path := range map[string]string{
		form.FieldOpponentLogo: o.logo,
		form.FieldHomeLineup:   o.homeLineup,
		form.FieldAwayLineup:   o.awayLineup,
		form.FieldMatchVideo:   o.video,
	} {
		if path == "" {
			continue
		}
		a, err := upload.FromFile(path, "")
		if err != nil {
			logger.Get().Warn(ctx, "cannot read attachment", logger.String("field", field), logger.Error(err))
			continue
		}
		_ = f.Attach(ctx, field, a)
	}
}

func submit(ctx context.Context, cfg *config.Config, c *app.Components, args []string, out io.Writer) error {
	o, err := parseSubmit(args, out)
	if err != nil {
		return err
	}

	f := form.New(form.WithLogger(logger.Get().Named("form")))
	fillForm(ctx, o, f)
	sub, err := f.Submit(ctx)
	if err != nil {
		fmt.Fprintln(out, "The match form has errors:")
		printError(out, err)
		return err
	}

	opts := append(c.Options(cfg, logger.Get().Named("pipeline")), app.WithWorkerCount(1))
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	run, err := svc.Submit(ctx, sub)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, run.Submission.Headline())

	waitCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	run, err = watch(waitCtx, svc, run.ID, out)
	if err != nil {
		_, _ = svc.Discard(context.WithoutCancel(ctx), run.ID)
		return err
	}
	if run.Stage == model.StageFailed {
		return fmt.Errorf("analysis failed: %s", run.Error)
	}

	printPreview(out, run)
	if o.output != "" {
		if err := writeEvents(o.output, *run.Result); err != nil {
			return err
		}
		fmt.Fprintf(out, "Events written to %s\n", o.output)
	}

	if !o.confirm {
		fmt.Fprintln(out, "Preview only. Run again with -confirm to save it.")
		_, err := svc.Discard(ctx, run.ID)
		return err
	}
	run, err = svc.Confirm(ctx, run.ID)
	if err != nil {
		fmt.Fprintf(out, "Confirmation failed: %v\n", err)
		return err
	}
	fmt.Fprintln(out, run.Message)
	return nil
}

// watch prints each new progress message until the run leaves analysis.
func watch(ctx context.Context, svc *app.Service, id string, out io.Writer) (model.Run, error) {
	ticker := time.NewTicker(progressPoll)
	defer ticker.Stop()
	last := ""
	for {
		run, err := svc.Get(ctx, id)
		if err != nil {
			return model.Run{ID: id}, err
		}
		if run.Message != "" && run.Message != last {
			last = run.Message
			fmt.Fprintf(out, "  %s\n", last)
		}
		if run.Stage != model.StageAnalyzing {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, fmt.Errorf("waiting for analysis: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func printPreview(out io.Writer, run model.Run) { //nolint:gocritic // hugeParam
	res := run.Result
	fmt.Fprintf(out, "\nAnalyzed video: %s\n", res.AnalyzedVideo.Name)
	if len(res.Events) == 0 {
		fmt.Fprintln(out, "No events detected.")
		return
	}
	fmt.Fprintf(out, "Events (%d):\n", len(res.Events))
	for _, e := range res.Events {
		line := fmt.Sprintf("  %s  %-12s", e.Time, e.Type)
		if e.Player != "" {
			line += " " + e.Player
		}
		if e.Team != "" {
			line += " (" + e.Team + ")"
		}
		fmt.Fprintln(out, line)
	}
	s := model.Summarize(res.Events)
	if res.Summary != nil {
		s = *res.Summary
	}
	fmt.Fprintf(out, "Goals %d, fouls %d, corners %d, cards %d\n", s.Goals, s.Fouls, s.Corners, s.Cards)
}

func writeEvents(path string, res model.AnalysisResult) error { //nolint:gocritic // hugeParam
	doc, err := res.EventsDocument()
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	if err := os.WriteFile(path, doc, outputPermission); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}
