package logsvc

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
)

// NewZap builds the process-wide zap logger: human readable in debug, JSON otherwise.
func NewZap(conf *core.Config) (*zap.Logger, error) {
	zconf := zap.NewProductionConfig()
	if conf.Debug {
		zconf = zap.NewDevelopmentConfig()
		zconf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zconf.InitialFields = map[string]interface{}{"env": conf.Env, "build": conf.Build}
	return zconf.Build(zap.AddCallerSkip(1))
}

// RollbarLogger reports to Rollbar and writes the same entry through zap.
type RollbarLogger struct {
	zl *zap.SugaredLogger
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger returns a logger named `name` (API, DB, ADMIN, SCHEDULER...).
func NewRollbarLogger(zl *zap.Logger, name string, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(!conf.Debug && !conf.TestMode && conf.RollbarToken != "")
	return &RollbarLogger{zl: zl.Named(name).Sugar()}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Flush waits for queued Rollbar items and flushes zap buffers.
func (l *RollbarLogger) Flush() {
	rollbar.Wait()
	_ = l.zl.Sync()
}

// prepare splits args (error, map[string]interface{}, user.User) into Rollbar arguments and zap fields.
func (l *RollbarLogger) prepare(msg string, args []interface{}) (rbArgs []interface{}, fields []interface{}) {
	var usrSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		switch v := arg.(type) {
		case user.User:
			// only set one User
			if !usrSet {
				rollbar.SetPerson(v.ID, v.Username, v.Email)
				fields = append(fields, "user_id", v.ID)
				usrSet = true
			}
		case error:
			rbArgs = append(rbArgs, v)
			fields = append(fields, zap.Error(v))
		case map[string]interface{}:
			rbArgs = append(rbArgs, v)
			for key, val := range v {
				fields = append(fields, key, val)
			}
		default:
			rbArgs = append(rbArgs, v)
			fields = append(fields, zap.Any("arg", v))
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return rbArgs, fields
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.zl.Debugw(msg, fields...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.zl.Infow(msg, fields...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.zl.Warnw(msg, fields...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.zl.Errorw(msg, fields...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	l.zl.Fatalw(msg, fields...)
}
