package engine

import (
	"database/sql"
	"time"

	"tideline/internal/config"
	"tideline/internal/events"
	"tideline/internal/notify"
	"tideline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify notify.Dispatcher
	Config *config.Config
	Now    func() time.Time

	locks *lockRegistry
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	e := &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newLockRegistry(),
	}
	e.Notify = notify.Dispatcher{Repo: e.Repo, Now: e.now}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// lockWait is the budget for taking a per-resource write lock.
func (e *Engine) lockWait() time.Duration {
	if e.Config == nil {
		return 2 * time.Second
	}
	return e.Config.LockWait()
}

func (e *Engine) defaultRecipients() []string {
	if e.Config == nil {
		return nil
	}
	return e.Config.Notifications.DefaultRecipients
}
