package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"contract-insights/internal/app"
	"contract-insights/internal/document"
	"contract-insights/internal/insights"
	"contract-insights/internal/upload"
)

const usage = `usage:
  contracts summarize [-o out.txt] file.pdf
  contracts chat -q "question" [file.pdf ...]
`

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type buildFunc func(ctx context.Context, logOut io.Writer) (app.Deps, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, app.BuildWithLogWriter)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, build buildFunc) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	var cmd func(context.Context, []string, io.Writer, io.Writer, buildFunc) error
	switch args[0] {
	case "summarize":
		cmd = summarizeCmd
	case "chat":
		cmd = chatCmd
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return exitUsage
	}

	err := cmd(ctx, args[1:], stdout, stderr, build)
	var uerr usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr):
		fmt.Fprintf(stderr, "%v\n%s", err, usage)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func summarizeCmd(ctx context.Context, args []string, stdout, stderr io.Writer, build buildFunc) error {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.StringP("output", "o", "", "write the summary to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	if fs.NArg() != 1 {
		return usageError{"summarize takes exactly one file"}
	}

	deps, err := build(ctx, stderr)
	if err != nil {
		return err
	}
	defer deps.Close()

	f, err := upload.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	res, err := upload.Validator{MaxFileSize: deps.Config.MaxSummaryUploadSize}.Validate(f)
	if err != nil {
		return err
	}

	sum, err := deps.Insights.SummarizeContract(ctx, res.Descriptor)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = fmt.Fprintln(stdout, sum.Summary)
		return err
	}
	if err := os.WriteFile(*out, []byte(sum.Summary), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	deps.Log.Info("summary written", "file", res.Descriptor.FileName, "output", *out)
	return nil
}

func chatCmd(ctx context.Context, args []string, stdout, stderr io.Writer, build buildFunc) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	query := fs.StringP("query", "q", "", "question to ask about the contracts")
	if err := fs.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	if strings.TrimSpace(*query) == "" {
		return usageError{"chat requires -q"}
	}

	deps, err := build(ctx, stderr)
	if err != nil {
		return err
	}
	defer deps.Close()

	files := make([]upload.File, 0, fs.NArg())
	for _, path := range fs.Args() {
		f, err := upload.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	results, failed := upload.Validator{MaxFileSize: deps.Config.MaxUploadSize}.ValidateAll(files)
	for _, fe := range failed {
		fmt.Fprintf(stderr, "skipping %v\n", fe)
	}
	if len(files) > 0 && len(results) == 0 {
		return errors.New("no valid contracts")
	}

	contracts := make([]document.Descriptor, 0, len(results))
	for _, r := range results {
		contracts = append(contracts, r.Descriptor)
	}
	res, err := deps.Insights.ChatWithContracts(ctx, insights.ChatQuery{UserQuery: *query, Contracts: contracts})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, res.AIResponse)
	return err
}
