// Package tstea runs one bubbletea program per ssh or browser session.
package tstea

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/creack/pty"
	"github.com/ghthor/gotty/v2/server"
	"github.com/ghthor/gridfall/ctxhelp"
	"github.com/gorilla/websocket"
	"github.com/muesli/termenv"
	"golang.org/x/sync/errgroup"
	"tailscale.com/client/local"
)

type Session interface {
	RemoteAddr() net.Addr
}

// Player identifies whoever is on the other end of a session.
type Player struct {
	Login string
	Addr  string
}

// Name is the login without its domain, or the remote host when the session
// isn't on tailscale.
func (p Player) Name() string {
	if p.Login == "" {
		host, _, err := net.SplitHostPort(p.Addr)
		if err != nil {
			return p.Addr
		}
		return host
	}
	name, _, _ := strings.Cut(p.Login, "@")
	return name
}

// Identify looks the remote address up on tailscale. With a nil client it
// only records the address.
func Identify(ctx context.Context, lc *local.Client, addr net.Addr) (Player, error) {
	p := Player{Addr: addr.String()}
	if lc == nil {
		return p, nil
	}

	who, err := lc.WhoIs(ctx, p.Addr)
	if err != nil {
		return p, fmt.Errorf("tailscale WhoIs %s: %w", p.Addr, err)
	}
	if who.UserProfile != nil {
		p.Login = who.UserProfile.LoginName
	}
	return p, nil
}

type NewSshModel func(context.Context, ssh.Pty, Session, Player) tea.Model
type NewHttpModel func(context.Context, Session, Player) tea.Model
type NewTeaProgram func(context.Context, tea.Model, ...tea.ProgramOption) *tea.Program

// NewProgram is the NewTeaProgram every session uses unless told otherwise.
func NewProgram(ctx context.Context, m tea.Model, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(m, append(opts, tea.WithContext(ctx), tea.WithAltScreen())...)
}

func WishMiddleware(ctx context.Context, lc *local.Client, newModel NewSshModel, newProg NewTeaProgram) wish.Middleware {
	teaHandler := func(s ssh.Session) *tea.Program {
		player, err := Identify(s.Context(), lc, s.RemoteAddr())
		if err != nil {
			wish.Fatalln(s, "identify error: ", err)
			return nil
		}

		pty, _, active := s.Pty()
		if !active {
			wish.Fatalln(s, "no active terminal, skipping")
			return nil
		}
		log.Info("session started", "player", player.Name(), "addr", player.Addr, "transport", "ssh")

		var (
			progCtx, _ = ctxhelp.Join(ctx, s.Context())
			m          = newModel(progCtx, pty, s, player)
		)
		return newProg(progCtx, m, bubbletea.MakeOptions(s)...)
	}
	return bubbletea.MiddlewareWithProgramHandler(teaHandler, termenv.ANSI256)
}

type TeaTYFactory struct {
	ctx context.Context
	ts  *local.Client

	newModel NewHttpModel
	newProg  NewTeaProgram
}

// NewTeaTYFactory serves a program per websocket through gotty. ts may be nil.
func NewTeaTYFactory(ctx context.Context, ts *local.Client, newModel NewHttpModel, newProg NewTeaProgram) *TeaTYFactory {
	return &TeaTYFactory{
		ctx: ctx,
		ts:  ts,

		newModel: newModel,
		newProg:  newProg,
	}
}

var _ server.Factory = &TeaTYFactory{}

func (*TeaTYFactory) Name() string { return "gridfall" }

func (f *TeaTYFactory) New(ctx context.Context, params map[string][]string, conn *websocket.Conn) (server.Slave, error) {
	ctx, cancel := ctxhelp.Join(f.ctx, ctx)

	player, err := Identify(ctx, f.ts, conn.RemoteAddr())
	if err != nil {
		cancel(err)
		return nil, err
	}

	p, t, err := pty.Open()
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("failed to pty.Open(): %w", err)
	}
	log.Info("session started", "player", player.Name(), "addr", player.Addr, "transport", "http")

	m := f.newModel(ctx, conn, player)
	prog := f.newProg(ctx, m,
		tea.WithInput(t),
		tea.WithOutput(t),
	)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer func() {
			t.Close()
			p.Close()
			conn.Close()
			cancel(nil)
		}()

		_, err := prog.Run()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, tea.ErrProgramKilled) {
			cancel(err)
			return err
		}

		return nil
	})

	return &TeaTYProgram{
		ctx: grpCtx,
		pty: p,
		tty: t,

		grp:     grp,
		program: prog,
	}, nil
}

type TeaTYProgram struct {
	ctx context.Context

	pty, tty *os.File

	grp     *errgroup.Group
	program *tea.Program
}

var _ server.Slave = &TeaTYProgram{}

func (t *TeaTYProgram) Read(p []byte) (n int, err error) {
	return t.pty.Read(p)
}

func (t *TeaTYProgram) Write(p []byte) (n int, err error) {
	return t.pty.Write(p)
}

func (t *TeaTYProgram) Close() error {
	t.tty.Close()
	t.pty.Close()
	t.program.Quit()
	return t.grp.Wait()
}

func (t *TeaTYProgram) WindowTitleVariables() map[string]any {
	return map[string]any{"title": "gridfall"}
}

// ResizeTerminal retries because the browser often resizes before the pty
// is ready for it.
func (t *TeaTYProgram) ResizeTerminal(width, height int) error {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Millisecond,
		RandomizationFactor: 0.0,
		Multiplier:          1.1,
		MaxInterval:         500 * time.Millisecond,
	}
	size := &pty.Winsize{
		Cols: uint16(width),
		Rows: uint16(height),
	}
	_, err := backoff.Retry(t.ctx, func() (struct{}, error) {
		return struct{}{}, errors.Join(
			pty.Setsize(t.pty, size),
			pty.Setsize(t.tty, size),
		)
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxElapsedTime(2*time.Second),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn("pty resize", "error", err, "retrying", d)
		}),
	)
	if err != nil {
		log.Warn("pty resize retry exhausted", "error", err)
		return err
	}
	t.program.Send(tea.WindowSizeMsg{
		Width:  width,
		Height: height,
	})
	return nil
}
