package logsvc

import (
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

// RollbarLogger prints to a std logger and reports the same entry to Rollbar.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is a log call with the acting principal pulled out of its args.
type entry struct {
	msg    string
	actor  identity.Principal
	role   identity.Role
	extras []interface{} // errors & maps of extra data
}

// newEntry reads args of the form: error, map[string]interface{}, identity.Principal, identity.RoleGrant.
// The first principal (or grant) names the actor; a grant also gives its role.
func newEntry(msg string, args []interface{}) entry {
	e := entry{msg: msg, extras: make([]interface{}, 0, len(args))}
	for _, arg := range args {
		switch v := arg.(type) {
		case identity.Principal:
			if e.actor.Email == "" {
				e.actor = v
			}
			if e.role == "" {
				e.role = v.Role
			}
		case identity.RoleGrant:
			if e.actor.Email == "" {
				e.actor = identity.Principal{Email: v.Email}
			}
			e.role = v.Role
		default:
			e.extras = append(e.extras, arg)
		}
	}
	return e
}

// rollbarArgs sets the Rollbar person to the actor and returns the args to report.
func (e entry) rollbarArgs() []interface{} {
	if e.actor.Email == "" {
		rollbar.ClearPerson()
	} else {
		rollbar.SetPerson(core.EmailKey(e.actor.Email), e.actor.Name, e.actor.Email)
	}
	args := append([]interface{}{e.msg}, e.extras...)
	if e.role != "" {
		args = append(args, map[string]interface{}{"role": string(e.role)})
	}
	return args
}

func (e entry) String() string {
	var b strings.Builder
	b.WriteString(e.msg)
	if e.actor.Email != "" {
		b.WriteString(" actor=" + e.actor.Email)
	}
	if e.role != "" {
		b.WriteString(" role=" + string(e.role))
	}
	return b.String()
}

func (l RollbarLogger) print(e entry) {
	l.std.Println(e.String())
	for _, extra := range e.extras {
		l.std.Printf("%+v\n", extra)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	e := newEntry(msg, args)
	rollbar.Debug(e.rollbarArgs()...)
	l.print(e)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	e := newEntry(msg, args)
	rollbar.Info(e.rollbarArgs()...)
	l.print(e)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	e := newEntry(msg, args)
	rollbar.Warning(e.rollbarArgs()...)
	l.print(e)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	e := newEntry(msg, args)
	rollbar.Error(e.rollbarArgs()...)
	l.print(e)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	e := newEntry(msg, args)
	rollbar.Critical(e.rollbarArgs()...)
	l.print(e)
	l.std.Fatal(msg)
}
