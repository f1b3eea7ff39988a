// Command claude-lsp is the diagnostics sidecar binary: the hook
// dispatcher the host invokes directly, and the per-project supervisor
// process it spawns on demand.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/claude-lsp/sidecar/internal/adapter/uds"
	"github.com/claude-lsp/sidecar/internal/config"
	"github.com/claude-lsp/sidecar/internal/domain/diagnostic"
	"github.com/claude-lsp/sidecar/internal/domain/project"
	"github.com/claude-lsp/sidecar/internal/hook"
	"github.com/claude-lsp/sidecar/internal/logger"
	"github.com/claude-lsp/sidecar/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: claude-lsp <hook|diagnostics|start|stop|status|kill-all> ...")
		return 1
	}

	flags, err := config.ParseFlags(args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, _, err := config.LoadWithCLI(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()

	switch args[0] {
	case "hook":
		return runHook(*cfg, log, args[1:])
	case "diagnostics":
		return runDiagnostics(*cfg, log, args[1:])
	case "start":
		return runStart(*cfg, log, args[1:])
	case "stop":
		return runStop(*cfg, args[1:])
	case "status":
		return runStatus(*cfg, args[1:])
	case "kill-all":
		return runKillAll(*cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return 1
	}
}

func runHook(cfg config.Config, log *slog.Logger, rest []string) int {
	if len(rest) == 0 {
		return 0
	}
	kind := hook.EventKind(rest[0])
	switch kind {
	case hook.EventToolUseCompletion, hook.EventSessionStart, hook.EventStop:
	default:
		kind = hook.EventOther
	}

	d := &hook.Dispatcher{Config: cfg, Logger: log}
	return d.Handle(context.Background(), kind, os.Stdin, os.Stderr)
}

func runDiagnostics(cfg config.Config, log *slog.Logger, rest []string) int {
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: claude-lsp diagnostics <projectRoot> [filePath]")
		return 1
	}
	root, err := project.NewRoot(rest[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	runtimeDir, err := uds.RuntimeDir(cfg.Server.RuntimeDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	sockPath := uds.ForProject(runtimeDir, root.ID).Socket

	ctx := context.Background()
	if err := hook.EnsureRunning(ctx, sockPath, root.Path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	client := hook.NewSupervisorClient(sockPath)

	var diags []diagnostic.Diagnostic
	if len(rest) > 1 {
		diags, err = client.DiagnosticsFile(ctx, rest[1])
	} else {
		diags, err = client.DiagnosticsAll(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	for _, d := range diags {
		fmt.Printf("%s:%d:%d: %s: %s (%s)\n", d.File, d.Line, d.Column, d.Severity, d.Message, d.Source)
	}
	log.Info("diagnostics complete", "project", root.Path, "count", len(diags))
	return 0
}

func runStart(cfg config.Config, log *slog.Logger, rest []string) int {
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: claude-lsp start <projectRoot>")
		return 1
	}

	sup, err := supervisor.New(cfg, rest[0], log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runStop(cfg config.Config, rest []string) int {
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "usage: claude-lsp stop <projectRoot>")
		return 1
	}
	root, err := project.NewRoot(rest[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	runtimeDir, err := uds.RuntimeDir(cfg.Server.RuntimeDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	sockPath := uds.ForProject(runtimeDir, root.ID).Socket
	hook.NewSupervisorClient(sockPath).Shutdown(context.Background())
	return 0
}

func runStatus(cfg config.Config, rest []string) int {
	runtimeDir, err := uds.RuntimeDir(cfg.Server.RuntimeDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if len(rest) != 0 {
		root, err := project.NewRoot(rest[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		sockPath := uds.ForProject(runtimeDir, root.ID).Socket
		if uds.HealthOK(context.Background(), sockPath, 500*time.Millisecond) {
			fmt.Println("running")
			return 0
		}
		fmt.Println("stopped")
		return 1
	}

	return listAllStatus(runtimeDir)
}

// listAllStatus enumerates every socket file under runtimeDir and reports
// each supervisor's liveness. Output is a column-aligned table when
// stdout is a terminal and a plain, greppable form otherwise.
func listAllStatus(runtimeDir string) int {
	entries, err := os.ReadDir(runtimeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var rows [][4]string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".sock") {
			continue
		}
		projectID := strings.TrimSuffix(strings.TrimPrefix(name, "claude-lsp-"), ".sock")
		sockPath := runtimeDir + "/" + name
		client := hook.NewSupervisorClient(sockPath)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		info, err := client.Health(ctx)
		cancel()
		if err != nil {
			rows = append(rows, [4]string{projectID, "stopped", "-", sockPath})
			continue
		}
		uptime := (time.Duration(info.Uptime) * time.Second).String()
		rows = append(rows, [4]string{projectID, "running", uptime, sockPath})
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROJECT ID\tSTATUS\tUPTIME\tSOCKET")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r[0], r[1], r[2], r[3])
		}
		_ = tw.Flush()
		return 0
	}

	for _, r := range rows {
		fmt.Printf("%s\t%s\t%s\t%s\n", r[0], r[1], r[2], r[3])
	}
	return 0
}

func runKillAll(cfg config.Config, log *slog.Logger) int {
	runtimeDir, err := uds.RuntimeDir(cfg.Server.RuntimeDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	entries, err := os.ReadDir(runtimeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".sock") {
			continue
		}
		sockPath := runtimeDir + "/" + name
		hook.NewSupervisorClient(sockPath).Shutdown(context.Background())
		log.Info("sent shutdown", "socket", sockPath)
	}
	return 0
}
