package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/candidate-research/internal/export"
	"github.com/jonathan/candidate-research/internal/fetch"
	"github.com/jonathan/candidate-research/internal/notify"
	"github.com/jonathan/candidate-research/internal/observability"
	"github.com/jonathan/candidate-research/internal/research"
	"github.com/jonathan/candidate-research/internal/types"
)

// runOptions holds the run command flags
type runOptions struct {
	Profile        string
	JobPath        string
	JobText        string
	JobURL         string
	Render         bool
	Notes          string
	AttachmentPath string
	Export         string
	Out            string
}

var runOpts runOptions

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Research one candidate in the terminal",
	Long: `Submits a single research session, prints progress as each stage completes and
shows the evaluation when the pipeline finishes. Ctrl-C cancels the session.

The job description comes from exactly one of --job (a file, HTML or text),
--job-text or --job-url (Greenhouse, Lever, Workday, Ashby or a generic page).
Add --render for boards that only show the posting after JavaScript runs.`,
	Args: cobra.NoArgs,
	RunE: runResearchCmd,
}

func init() {
	f := runCommand.Flags()
	f.StringVarP(&runOpts.Profile, "profile", "p", "", "Candidate profile reference, e.g. a LinkedIn URL (required)")
	f.StringVarP(&runOpts.JobPath, "job", "j", "", "Path to the job description (mutually exclusive with --job-text)")
	f.StringVar(&runOpts.JobText, "job-text", "", "Job description text")
	f.StringVar(&runOpts.JobURL, "job-url", "", "Job posting URL to fetch the description from")
	f.BoolVar(&runOpts.Render, "render", false, "Render --job-url in headless Chrome when the page needs JavaScript")
	f.StringVar(&runOpts.Notes, "notes", "", "Additional notes for the research")
	f.StringVarP(&runOpts.AttachmentPath, "attachment", "a", "", "Resume document to attach (PDF, DOC or DOCX)")
	f.StringVarP(&runOpts.Export, "export", "e", "", "Export the result as "+export.FormatNames("|"))
	f.StringVarP(&runOpts.Out, "out", "o", "", "Export destination (defaults to the suggested file name)")

	rootCmd.AddCommand(runCommand)
}

func runResearchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath, os.Getenv)
	if err != nil {
		return err
	}

	if err := applyConfigVerbosity(cmd, cfg); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.Browser = runOpts.Render
	fetchOpts.Logger = logger

	intake, err := buildIntake(ctx, runOpts, fetchOpts)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger, sessionNotices(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer a.Close()

	return executeRun(ctx, a, intake, runOpts, cmd.OutOrStdout())
}

// sessionNotices prints accepted submissions and failed exports on the terminal
func sessionNotices(out io.Writer) notify.Sink {
	return notify.SinkFunc(func(e notify.Event) {
		switch {
		case e.Kind == notify.KindSubmit && e.OK():
			_, _ = fmt.Fprintf(out, "Submitted research session %s\n", e.SessionID)
		case e.Kind == notify.KindExport && !e.OK():
			_, _ = fmt.Fprintf(out, "Export as %s failed: %v\n", e.Format, e.Err)
		}
	})
}

// buildIntake reads the job description and attachment named by the flags.
// fetchOpts is used for --job-url; nil means fetch defaults.
func buildIntake(ctx context.Context, o runOptions, fetchOpts *fetch.Options) (types.Intake, error) {
	sources := 0
	for _, s := range []string{o.JobPath, o.JobText, o.JobURL} {
		if s != "" {
			sources++
		}
	}
	if sources == 0 {
		return types.Intake{}, fmt.Errorf("one of --job, --job-text or --job-url must be provided")
	}
	if sources > 1 {
		return types.Intake{}, fmt.Errorf("--job, --job-text and --job-url are mutually exclusive; provide only one")
	}

	in := types.Intake{
		ProfileReference:   o.Profile,
		JobDescriptionText: o.JobText,
		Notes:              o.Notes,
	}

	if o.JobPath != "" {
		data, err := os.ReadFile(o.JobPath)
		if err != nil {
			return types.Intake{}, fmt.Errorf("failed to read job description: %w", err)
		}
		in.JobDescriptionText = string(data)
	}

	if o.JobURL != "" {
		posting, err := fetch.JobPosting(ctx, o.JobURL, fetchOpts)
		if err != nil {
			return types.Intake{}, err
		}
		in.JobDescriptionText = posting.Text
	}

	if o.AttachmentPath != "" {
		data, err := os.ReadFile(o.AttachmentPath)
		if err != nil {
			return types.Intake{}, fmt.Errorf("failed to read attachment: %w", err)
		}
		in.Attachment = &types.Attachment{
			Name:     filepath.Base(o.AttachmentPath),
			MimeType: declaredMimeType(o.AttachmentPath, data),
			Bytes:    data,
		}
	}

	return in, nil
}

// declaredMimeType names the attachment type the way a browser upload would:
// by extension for the accepted office formats, by content otherwise.
func declaredMimeType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return types.MimePDF
	case ".doc":
		return types.MimeDOC
	case ".docx":
		return types.MimeDOCX
	}
	m, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return m
}

// executeRun submits the intake, prints progress until the session is terminal
// and exports the result when asked. Cancelling ctx cancels the session.
func executeRun(ctx context.Context, a *app, intake types.Intake, o runOptions, out io.Writer) error {
	if o.Export != "" {
		if _, err := export.ParseFormat(o.Export); err != nil {
			return err
		}
	}

	printer := observability.NewPrinter(out, a.cfg.LogWindow)
	snaps := make(chan types.Snapshot, 64)
	unsubscribe := a.ctrl.Subscribe(func(v research.ViewState) {
		if v.Session == nil {
			return
		}
		select {
		case snaps <- *v.Session:
		default:
		}
	})

	id, err := a.ctrl.Submit(intake)
	if err != nil {
		unsubscribe()
		return err
	}

	var (
		g     errgroup.Group
		final types.Snapshot
		done  = make(chan struct{})
	)

	g.Go(func() error {
		defer close(done)
		defer close(snaps)
		defer unsubscribe()

		snap, err := a.ctrl.Await(context.WithoutCancel(ctx), id)
		if err != nil {
			return err
		}
		final = snap
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			a.log.Info("Interrupted, cancelling research", zap.String("session_id", id))
			if err := a.ctrl.Cancel(); err != nil && !research.IsInvalidState(err) {
				return err
			}
		case <-done:
		}
		return nil
	})

	g.Go(func() error {
		last := ""
		for snap := range snaps {
			if snap.ID != id {
				continue
			}
			key := fmt.Sprintf("%s/%d", snap.Status, len(snap.CompletedStages))
			if key == last || snap.Status.Terminal() {
				continue
			}
			last = key
			printer.PrintSnapshot(snap)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	printer.PrintSnapshot(final)

	switch final.Status {
	case types.StatusCompleted:
		printer.PrintResult(final.Result)
	case types.StatusCancelled:
		return fmt.Errorf("research cancelled")
	case types.StatusFailed:
		if final.Error != nil {
			return fmt.Errorf("research failed at %s: %s", final.Error.Stage, final.Error.Message)
		}
		return fmt.Errorf("research failed")
	}

	if o.Export == "" {
		return nil
	}
	return writeExport(a, o, out)
}

func writeExport(a *app, o runOptions, out io.Writer) error {
	payload, err := a.ctrl.Export(o.Export)
	if err != nil {
		return err
	}

	path := o.Out
	if path == "" {
		path = payload.Filename
	}
	if err := os.WriteFile(path, payload.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Exported %s report to %s (%d bytes)\n", payload.Format, path, len(payload.Data))
	return nil
}
