package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"chemviz-client-go/internal/apiclient"
	domainauth "chemviz-client-go/internal/domain/auth"
	"chemviz-client-go/internal/domain/dataset"
	"chemviz-client-go/internal/domain/eventbus/repository"
)

// Exit codes.
const (
	ExitOK             = 0
	ExitError          = 1
	ExitUsage          = 2
	ExitSessionExpired = 3
)

// ErrUsage marks errors caused by bad arguments.
var ErrUsage = errors.New("usage error")

// Logger is the logging contract of the command layer.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// GlobalOptions are the flags accepted before the command name.
type GlobalOptions struct {
	ConfigPath string
	BaseURL    string
	Namespace  string
	Debug      bool
}

// ParseGlobal splits args into global options and the command line.
func ParseGlobal(args []string, stderr io.Writer) (GlobalOptions, []string, error) {
	var opts GlobalOptions
	fs := flag.NewFlagSet("chemviz", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ConfigPath, "config", "", "path to the YAML config file")
	fs.StringVar(&opts.BaseURL, "base-url", "", "backend API base URL")
	fs.StringVar(&opts.Namespace, "namespace", "", "session namespace")
	fs.BoolVar(&opts.Debug, "debug", false, "log debug output to stderr")
	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return opts, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return opts, nil, fmt.Errorf("%w: missing command", ErrUsage)
	}
	return opts, fs.Args(), nil
}

// Deps are the services the commands run against.
type Deps struct {
	Auth      *domainauth.Manager
	Datasets  *dataset.Service
	Events    repository.EventRepository
	ReportDir string
	Logger    Logger
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

// App dispatches one command line.
type App struct {
	deps     Deps
	commands map[string]command
}

type command struct {
	summary string
	run     func(ctx context.Context, args []string) error
}

func New(deps Deps) *App {
	if deps.Stdin == nil {
		deps.Stdin = strings.NewReader("")
	}
	if deps.Stdout == nil {
		deps.Stdout = io.Discard
	}
	if deps.Stderr == nil {
		deps.Stderr = io.Discard
	}
	a := &App{deps: deps}
	a.commands = map[string]command{
		"register": {"create an account and start a session", a.register},
		"login":    {"start a session", a.login},
		"logout":   {"end the session", a.logout},
		"profile":  {"show the current user", a.profile},
		"status":   {"show the stored session", a.status},
		"datasets": {"list, show, upload or delete datasets", a.datasets},
		"report":   {"download the PDF report of a dataset", a.report},
		"events":   {"show recorded session events", a.events},
	}
	return a
}

// Run executes args and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		printUsage(a.deps.Stderr)
		return ExitUsage
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(a.deps.Stdout)
		return ExitOK
	}
	cmd, ok := a.commands[name]
	if !ok {
		fmt.Fprintf(a.deps.Stderr, "unknown command %q\n", name)
		printUsage(a.deps.Stderr)
		return ExitUsage
	}

	err := cmd.run(ctx, args[1:])
	if err != nil && a.deps.Logger != nil {
		a.deps.Logger.Debug("[cli] %s failed: %v", name, err)
	}
	return a.finish(err)
}

func (a *App) finish(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.Is(err, ErrUsage):
		fmt.Fprintln(a.deps.Stderr, err)
		return ExitUsage
	case apiclient.IsSessionExpired(err):
		// The expired notice itself is printed by the event subscriber.
		return ExitSessionExpired
	default:
		fmt.Fprintf(a.deps.Stderr, "error: %s\n", describe(err))
		return ExitError
	}
}

// ExitCode maps an error to the process exit code without printing.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case apiclient.IsSessionExpired(err):
		return ExitSessionExpired
	default:
		return ExitError
	}
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.deps.Stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

// readSecret returns value, or the first line of stdin when value is empty.
func (a *App) readSecret(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(a.deps.Stderr, prompt)
	line, err := bufio.NewReader(a.deps.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%w: %s is required", ErrUsage, strings.TrimSuffix(strings.TrimSpace(prompt), ":"))
	}
	return line, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage: chemviz [--config file] [--base-url url] [--namespace ns] [--debug] <command> [args]

commands:
  register --username u [--email e] [--first-name f] [--last-name l] [--password p]
  login    (--username u | --email e) [--password p]
  logout
  profile
  status
  datasets list [--details] [--concurrency n]
  datasets show <id> [--records]
  datasets upload <file.csv>
  datasets delete <id>
  report <id> [--out dir]
  events [--limit n] [--topic t]
`)
}
