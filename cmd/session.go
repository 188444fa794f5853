package cmd

import (
	"context"
	"os"

	"github.com/juju/errors"

	"github.com/ridoystarlord/archiveprune/database"
	"github.com/ridoystarlord/archiveprune/loader"
	"github.com/ridoystarlord/archiveprune/sandbox"
)

// session is a configuration bound to a base directory, plus the store once
// connected.
type session struct {
	config   *loader.Config
	sandbox  *sandbox.Sandbox
	resolved *loader.Resolved
	store    database.Store
}

// loadSession reads the configuration and resolves every path inside
// baseDir. policy, when set, overrides sandbox.policy from the file.
func loadSession(configPath, baseDir, policy string, getenv func(string) string) (*session, error) {
	cfg, err := loader.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if policy == "" {
		policy = cfg.SandboxPolicy
	}
	p, err := sandbox.ParsePolicy(policy)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sb, err := sandbox.New(baseDir, p)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	resolved, err := cfg.Resolve(sb, getenv)
	if err != nil {
		return nil, errors.Annotate(err, "resolving configuration")
	}
	return &session{config: cfg, sandbox: sb, resolved: resolved}, nil
}

func (s *session) connect(ctx context.Context) error {
	store, err := database.Open(ctx, s.resolved.Store)
	if err != nil {
		return errors.Trace(err)
	}
	s.store = store
	return nil
}

func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
