// Package daxlog provides a simple way of logging with different levels,
// adapted from the teacher's pkg/log. Time/date are not logged by default
// because systemd adds them for us; this can be changed with SetLogDateTime.
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package daxlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
	CritPrefix  string = "<2>[CRITICAL] "
)

var (
	DebugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	WarnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	ErrLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.Llongfile)
	CritLog  *log.Logger = log.New(CritWriter, CritPrefix, log.Llongfile)

	DebugTimeLog *log.Logger = log.New(DebugWriter, DebugPrefix, log.LstdFlags)
	InfoTimeLog  *log.Logger = log.New(InfoWriter, InfoPrefix, log.LstdFlags)
	WarnTimeLog  *log.Logger = log.New(WarnWriter, WarnPrefix, log.LstdFlags|log.Lshortfile)
	ErrTimeLog   *log.Logger = log.New(ErrWriter, ErrPrefix, log.LstdFlags|log.Llongfile)
	CritTimeLog  *log.Logger = log.New(CritWriter, CritPrefix, log.LstdFlags|log.Llongfile)
)

// SetLevel maps the config/CLI "loglevel" surface onto the per-level
// writers: every level below the requested one is discarded.
func SetLevel(lvl string) {
	switch lvl {
	case "crit":
		ErrWriter = io.Discard
		fallthrough
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
	default:
		fmt.Fprintf(os.Stderr, "daxlog: invalid loglevel %q, using debug\n", lvl)
	}
}

func SetLogDateTime(v bool) { logDateTime = v }

func printStr(v ...interface{}) string   { return fmt.Sprint(v...) }
func printfStr(f string, v ...interface{}) string { return fmt.Sprintf(f, v...) }

func Debug(v ...interface{}) {
	if DebugWriter == io.Discard {
		return
	}
	if logDateTime {
		DebugTimeLog.Output(2, printStr(v...))
	} else {
		DebugLog.Output(2, printStr(v...))
	}
}

func Info(v ...interface{}) {
	if InfoWriter == io.Discard {
		return
	}
	if logDateTime {
		InfoTimeLog.Output(2, printStr(v...))
	} else {
		InfoLog.Output(2, printStr(v...))
	}
}

func Warn(v ...interface{}) {
	if WarnWriter == io.Discard {
		return
	}
	if logDateTime {
		WarnTimeLog.Output(2, printStr(v...))
	} else {
		WarnLog.Output(2, printStr(v...))
	}
}

func Error(v ...interface{}) {
	if ErrWriter == io.Discard {
		return
	}
	if logDateTime {
		ErrTimeLog.Output(2, printStr(v...))
	} else {
		ErrLog.Output(2, printStr(v...))
	}
}

func Crit(v ...interface{}) {
	if CritWriter == io.Discard {
		return
	}
	if logDateTime {
		CritTimeLog.Output(2, printStr(v...))
	} else {
		CritLog.Output(2, printStr(v...))
	}
}

// Fatal logs at error level and terminates the process.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Debugf(format string, v ...interface{}) {
	if DebugWriter == io.Discard {
		return
	}
	if logDateTime {
		DebugTimeLog.Output(2, printfStr(format, v...))
	} else {
		DebugLog.Output(2, printfStr(format, v...))
	}
}

func Infof(format string, v ...interface{}) {
	if InfoWriter == io.Discard {
		return
	}
	if logDateTime {
		InfoTimeLog.Output(2, printfStr(format, v...))
	} else {
		InfoLog.Output(2, printfStr(format, v...))
	}
}

func Warnf(format string, v ...interface{}) {
	if WarnWriter == io.Discard {
		return
	}
	if logDateTime {
		WarnTimeLog.Output(2, printfStr(format, v...))
	} else {
		WarnLog.Output(2, printfStr(format, v...))
	}
}

func Errorf(format string, v ...interface{}) {
	if ErrWriter == io.Discard {
		return
	}
	if logDateTime {
		ErrTimeLog.Output(2, printfStr(format, v...))
	} else {
		ErrLog.Output(2, printfStr(format, v...))
	}
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}

/* SPECIAL */

// Finfof writes an info-level line through w instead of InfoWriter, for
// callers that already have their own io.Writer to log through (e.g. the
// admin HTTP access log).
func Finfof(w io.Writer, format string, v ...interface{}) {
	if w == io.Discard {
		return
	}
	if logDateTime {
		fmt.Fprintf(w, time.Now().String()+InfoPrefix+format+"\n", v...)
	} else {
		fmt.Fprintf(w, InfoPrefix+format+"\n", v...)
	}
}
