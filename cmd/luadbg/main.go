// Package main is the entry point for luadbg, a Debug Adapter Protocol
// server for the embedded Lua-like scripting VM in internal/vm.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/term"

	"github.com/dshills/luadbg/internal/applog"
	"github.com/dshills/luadbg/internal/debugger"
	"github.com/dshills/luadbg/internal/protocol"
	"github.com/dshills/luadbg/internal/vm"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	addr     string
	logLevel string
	repl     bool
	version  bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	if opts.version {
		fmt.Printf("luadbg %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		return 0
	}

	log := applog.New(applog.Config{Level: applog.ParseLogLevel(opts.logLevel), Prefix: "luadbg"})

	if opts.repl {
		return runREPL(log)
	}
	if opts.addr != "" {
		return runSocketServer(opts.addr, log)
	}
	return runStdio(log)
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.addr, "addr", "", "Listen address for a TCP DAP server (default: stdio)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.repl, "repl", false, "Run an interactive Lua REPL instead of a DAP server")
	flag.BoolVar(&opts.version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "luadbg - Debug Adapter Protocol server for the embedded Lua VM\n\n")
		fmt.Fprintf(os.Stderr, "Usage: luadbg [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  luadbg                  Serve DAP over stdio (the common editor-integration case)\n")
		fmt.Fprintf(os.Stderr, "  luadbg -addr :4711      Serve DAP over TCP, one session per connection\n")
		fmt.Fprintf(os.Stderr, "  luadbg -repl            Evaluate Lua interactively, no DAP framing\n")
	}
	flag.Parse()
	return opts
}

// runStdio serves a single DAP session over the process's own stdin/stdout,
// the mode an editor spawns luadbg in as a child process.
func runStdio(log *applog.Logger) int {
	conn := protocol.NewStdio(os.Stdin, os.Stdout)
	d := debugger.New(protocol.New(conn), log)
	d.Run()
	return 0
}

// runSocketServer accepts DAP sessions on addr, one Debugger per
// connection, until interrupted. A real client reconnect after disconnect
// gets a fresh session, matching one DAP session per TCP connection.
func runSocketServer(addr string, log *applog.Logger) int {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to listen on %s: %v\n", addr, err)
		return 1
	}
	defer ln.Close()
	log.Info("listening on %s", addr)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Info("listener closed: %v", err)
			return 0
		}
		go func() {
			d := debugger.New(protocol.New(protocol.NewSocketConn(conn)), log)
			d.Run()
		}()
	}
}

// termReadWriter pairs stdin/stdout into the io.ReadWriter term.NewTerminal
// expects; raw terminal mode is applied to stdin's file descriptor only.
type termReadWriter struct {
	io.Reader
	io.Writer
}

// runREPL is a standalone interactive Lua evaluator, bypassing DAP
// entirely — useful for exercising internal/vm without a client attached.
// It puts the controlling terminal into raw mode via golang.org/x/term so
// the embedded Terminal can own line editing, restoring the prior state on
// exit.
func runREPL(log *applog.Logger) int {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "Error: -repl requires an interactive terminal")
		return 1
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to enter raw mode: %v\n", err)
		return 1
	}
	defer func() { _ = term.Restore(fd, state) }()

	t := term.NewTerminal(termReadWriter{Reader: os.Stdin, Writer: os.Stdout}, "lua> ")
	v := vm.New()
	defer v.Close()

	fmt.Fprintf(t, "luadbg %s interactive Lua REPL (Ctrl-D to exit)\r\n", version)
	for {
		line, err := t.ReadLine()
		if err != nil {
			fmt.Fprint(t, "\r\n")
			return 0
		}
		if line == "" {
			continue
		}
		evalLine(t, v, log, line)
	}
}

// evalLine tries line as an expression first (so "1+1" prints 2), falling
// back to running it as a bare statement, the same two-step fallback
// internal/evaluator uses for a repl-context evaluate request.
func evalLine(t *term.Terminal, v *vm.VM, log *applog.Logger, line string) {
	log.Debug("repl eval: %s", line)
	if err := v.DoString("return " + line); err != nil {
		if err := v.DoString(line); err != nil {
			fmt.Fprintf(t, "error: %v\r\n", err)
			return
		}
	}
	top := v.L.GetTop()
	for i := 1; i <= top; i++ {
		val := v.L.Get(i)
		if val != lua.LNil {
			fmt.Fprintf(t, "%s\r\n", val.String())
		}
	}
	v.L.SetTop(0)
}
