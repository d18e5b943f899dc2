package app

import (
	"context"
	"path/filepath"

	"github.com/kardianos/service"
)

// ServiceConfig describes the system service that runs `substackulous
// start` with the given configuration file.
func ServiceConfig(configPath string) (*service.Config, error) {
	args := []string{"start"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        "substackulous",
		DisplayName: "Substackulous",
		Description: "AI growth assistant backend for Substack authors",
		Arguments:   args,
	}, nil
}

// Program adapts Run to the service manager's start/stop callbacks.
type Program struct {
	Params RunParams

	cancel context.CancelFunc
	done   chan error
}

// Start implements service.Interface. It must not block.
func (p *Program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- Run(ctx, p.Params)
	}()
	return nil
}

// Stop implements service.Interface.
func (p *Program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// NewService wraps Run in a system service.
func NewService(params RunParams) (service.Service, error) {
	cfg, err := ServiceConfig(params.ConfigPath)
	if err != nil {
		return nil, err
	}
	return service.New(&Program{Params: params}, cfg)
}
