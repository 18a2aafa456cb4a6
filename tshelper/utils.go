// Package tshelper opens the ssh and http listeners a gridfall server needs,
// either on a tailscale node or on plain TCP.
package tshelper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/charmbracelet/log"
	"tailscale.com/client/local"
	"tailscale.com/tsnet"
)

var ErrNoTailscale = errors.New("tshelper: listeners are not on tailscale")

type Listeners struct {
	ts *tsnet.Server

	Ssh, Http net.Listener

	// Client is nil for plain TCP listeners.
	Client *local.Client
}

type listenFunc func(network, addr string) (net.Listener, error)

// NewListeners starts a tsnet node named hostname and listens on it.
func NewListeners(hostname string, sshPort, httpPort int) (Listeners, error) {
	l := Listeners{}
	l.ts = new(tsnet.Server)
	l.ts.Hostname = hostname

	if err := l.listen(l.ts.Listen, "", sshPort, httpPort); err != nil {
		return l, err
	}

	var err error
	l.Client, err = l.ts.LocalClient()
	if err != nil {
		return l, errors.Join(
			fmt.Errorf("failed to create tsnet LocalClient(): %w", err),
			l.Close(),
		)
	}

	return l, nil
}

// NewTCPListeners listens on host without tailscale. Port 0 picks a free port.
func NewTCPListeners(host string, sshPort, httpPort int) (Listeners, error) {
	l := Listeners{}
	err := l.listen(net.Listen, host, sshPort, httpPort)
	return l, err
}

func (l *Listeners) listen(listen listenFunc, host string, sshPort, httpPort int) error {
	var err error
	l.Ssh, err = listen("tcp", net.JoinHostPort(host, fmt.Sprint(sshPort)))
	if err != nil {
		return errors.Join(
			fmt.Errorf("failed to start ssh listener: %w", err),
			l.Close(),
		)
	}

	l.Http, err = listen("tcp", net.JoinHostPort(host, fmt.Sprint(httpPort)))
	if err != nil {
		return errors.Join(
			fmt.Errorf("failed to start http listener: %w", err),
			l.Close(),
		)
	}
	return nil
}

func (l Listeners) Tailscale() bool { return l.ts != nil }

func (l Listeners) WaitForTailscaleIP(ctx context.Context) (v4, v6 netip.Addr, err error) {
	if l.ts == nil {
		return v4, v6, ErrNoTailscale
	}

	var (
		t    = time.NewTicker(time.Second)
		done = ctx.Done()
	)
	defer t.Stop()

	for {
		select {
		case <-done:
			return v4, v6, ctx.Err()

		case <-t.C:
			v4, v6 = l.ts.TailscaleIPs()
			if v4.IsValid() {
				return v4, v6, nil
			}
			log.Info("Waiting for tailscale IP")
		}
	}
}

// Addrs reports where the listeners can be reached, waiting for a tailscale
// address when there is one.
func (l Listeners) Addrs(ctx context.Context) (ssh, http string, err error) {
	if l.ts == nil {
		return l.Ssh.Addr().String(), l.Http.Addr().String(), nil
	}

	v4, _, err := l.WaitForTailscaleIP(ctx)
	if err != nil {
		return "", "", err
	}
	port := func(ln net.Listener) string {
		_, p, _ := net.SplitHostPort(ln.Addr().String())
		return net.JoinHostPort(v4.String(), p)
	}
	return port(l.Ssh), port(l.Http), nil
}

func (l Listeners) Close() error {
	errs := make([]error, 0, 3)
	if l.Ssh != nil {
		errs = append(errs, l.Ssh.Close())
	}
	if l.Http != nil {
		errs = append(errs, l.Http.Close())
	}
	if l.ts != nil {
		errs = append(errs, l.ts.Close())
	}

	return errors.Join(errs...)
}
