// Package gridfall hosts gridfall sessions over ssh with wish and in the
// browser with gotty. Every session plays its own board.
package gridfall

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	ui "github.com/ghthor/gridfall/bubbles/gridfall"
	"github.com/ghthor/gridfall/config"
	"github.com/ghthor/gridfall/gridsim"
	"github.com/ghthor/gridfall/piece"
	"github.com/ghthor/gridfall/tshelper"
	"github.com/ghthor/gridfall/tstea"
	"github.com/ghthor/gotty/v2/server"
	"github.com/ghthor/gotty/v2/utils"
	"golang.org/x/sync/errgroup"
)

const DefaultShutdownTimeout = 30 * time.Second

// NewGame builds a fresh board and its driver for one player. A zero seed
// draws pieces from a clock seeded source.
func NewGame(cfg *config.Config, player string, seed uint64) (*ui.Model, error) {
	var src rand.Source
	if seed != 0 {
		src = rand.NewPCG(seed, seed)
	}

	opts := append(cfg.SimOptions(),
		gridsim.WithChooser(piece.NewFactory(src)),
		gridsim.WithLogger(log.Default().With("component", "gridsim", "player", player)),
	)
	sim, err := gridsim.New(opts...)
	if err != nil {
		return nil, err
	}
	return ui.New(sim, ui.WithFallInterval(cfg.FallInterval), ui.WithPlayer(player)), nil
}

// Listen opens the ssh and http listeners, on a tailscale node when the
// config asks for one.
func Listen(cfg config.Server) (tshelper.Listeners, error) {
	if cfg.Tailscale {
		return tshelper.NewListeners(cfg.Hostname, cfg.SSHPort, cfg.HTTPPort)
	}
	return tshelper.NewTCPListeners(cfg.Bind, cfg.SSHPort, cfg.HTTPPort)
}

// Server hosts one game per ssh or browser session.
type Server struct {
	cfg  *config.Config
	seed uint64
	ln   tshelper.Listeners

	ShutdownTimeout time.Duration
}

// NewServer opens the listeners. Nothing is served until Run.
func NewServer(cfg *config.Config, seed uint64) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ln, err := Listen(cfg.Server)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:  cfg,
		seed: seed,
		ln:   ln,

		ShutdownTimeout: DefaultShutdownTimeout,
	}, nil
}

// Addrs reports the ssh and http addresses players connect to.
func (s *Server) Addrs(ctx context.Context) (sshAddr, httpAddr string, err error) {
	return s.ln.Addrs(ctx)
}

// Run serves until ctx is done or either server fails, then drains the ssh
// sessions and closes the listeners. It returns the failure, if any.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		// both servers close their own listener; this catches tsnet
		if err := s.ln.Close(); err != nil {
			log.Debug("closing listeners", "error", err)
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sshSrv, err := wish.NewServer(
		wish.WithHostKeyPath(s.cfg.Server.HostKeyPath),
		wish.WithMiddleware(
			tstea.WishMiddleware(ctx, s.ln.Client, s.newSshModel, tstea.NewProgram),
			logging.Middleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("could not create ssh server: %w", err)
	}

	sshAddr, httpAddr, err := s.Addrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve listener addresses: %w", err)
	}

	grp, grpCtx := errgroup.WithContext(ctx)

	log.Info("Starting SSH server", "addr", sshAddr, "tailscale", s.ln.Tailscale())
	s.serveSSH(grp, cancel, sshSrv)

	log.Infof("Starting HTTP server http://%s", httpAddr)
	if err := s.serveHTTP(grpCtx, grp, cancel, tstea.NewTeaTYFactory(ctx, s.ln.Client, s.newHttpModel, tstea.NewProgram)); err != nil {
		cancel(err)
	}

	<-ctx.Done()
	cause := context.Cause(ctx)

	log.Info("Stopping SSH server")
	if err := s.shutdownSSH(sshSrv); err != nil {
		log.Error("Could not stop server", "error", err)
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("error shutting down servers", "error", err)
	}

	if errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

func (s *Server) serveSSH(grp *errgroup.Group, cancel context.CancelCauseFunc, srv *ssh.Server) {
	grp.Go(func() error {
		if err := srv.Serve(s.ln.Ssh); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			cancel(err)
			return err
		}
		return nil
	})
}

// shutdownSSH waits for sessions to end, then closes whatever is left.
func (s *Server) shutdownSSH(srv *ssh.Server) error {
	timeout := s.ShutdownTimeout
	if timeout == 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("ssh shutdown timed out, closing sessions", "timeout", timeout)
			return srv.Close()
		}
		return err
	}
	return nil
}

func (s *Server) serveHTTP(ctx context.Context, grp *errgroup.Group, cancel context.CancelCauseFunc, fact server.Factory) error {
	opts := &server.Options{}
	if err := utils.ApplyDefaultValues(opts); err != nil {
		return fmt.Errorf("gotty default options failure: %w", err)
	}
	opts.Preferences = &server.HtermPrefernces{}
	if err := utils.ApplyDefaultValues(opts.Preferences); err != nil {
		return fmt.Errorf("gotty default hterm preferences failure: %w", err)
	}
	opts.Preferences.EnableWebGL = true
	opts.PermitWrite = true

	if err := opts.Validate(); err != nil {
		return fmt.Errorf("gotty options validation failure: %w", err)
	}

	gottySrv, err := server.New(fact, opts)
	if err != nil {
		return fmt.Errorf("error creating gotty server: %w", err)
	}

	grp.Go(func() error {
		if err := gottySrv.Run(ctx, server.WithListener(s.ln.Http)); err != nil && !errors.Is(err, context.Canceled) {
			cancel(err)
			return err
		}
		return nil
	})
	return nil
}

func (s *Server) newSshModel(ctx context.Context, pty ssh.Pty, sess tstea.Session, p tstea.Player) tea.Model {
	return s.session(p)
}

func (s *Server) newHttpModel(ctx context.Context, sess tstea.Session, p tstea.Player) tea.Model {
	return s.session(p)
}

func (s *Server) session(p tstea.Player) tea.Model {
	m, err := NewGame(s.cfg, p.Name(), s.seed)
	if err != nil {
		log.Error("failed to start session", "player", p.Name(), "error", err)
		return errorModel{err}
	}
	return m
}

// errorModel tells the player why there is no board and hangs up.
type errorModel struct{ err error }

func (m errorModel) Init() tea.Cmd                       { return tea.Quit }
func (m errorModel) Update(tea.Msg) (tea.Model, tea.Cmd) { return m, tea.Quit }
func (m errorModel) View() string                        { return "gridfall: " + m.err.Error() + "\n" }
