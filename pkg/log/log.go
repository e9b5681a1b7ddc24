// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides leveled logging with systemd priority prefixes.
// Time/Date are not logged because systemd adds them for us (default,
// can be changed by SetLogDateTime).
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelNotice
	LevelWarn
	LevelErr
	LevelCrit
)

type level struct {
	name    string
	prefix  string
	flags   int
	writer  io.Writer
	plain   *log.Logger
	timed   *log.Logger
}

var logDateTime bool

var levels = [...]*level{
	LevelDebug:  {name: "debug", prefix: "<7>[DEBUG]    ", flags: 0, writer: os.Stderr},
	LevelInfo:   {name: "info", prefix: "<6>[INFO]     ", flags: 0, writer: os.Stderr},
	LevelNotice: {name: "notice", prefix: "<5>[NOTICE]   ", flags: log.Lshortfile, writer: os.Stderr},
	LevelWarn:   {name: "warn", prefix: "<4>[WARNING]  ", flags: log.Lshortfile, writer: os.Stderr},
	LevelErr:    {name: "err", prefix: "<3>[ERROR]    ", flags: log.Llongfile, writer: os.Stderr},
	LevelCrit:   {name: "crit", prefix: "<2>[CRITICAL] ", flags: log.Llongfile, writer: os.Stderr},
}

func init() {
	for _, l := range levels {
		l.plain = log.New(l.writer, l.prefix, l.flags)
		l.timed = log.New(l.writer, l.prefix, l.flags|log.LstdFlags)
	}
}

// SetLogLevel silences every level below lvl by redirecting its writer to
// io.Discard. "debug" (the default) silences nothing.
func SetLogLevel(lvl string) {
	threshold := LevelDebug
	for i, l := range levels {
		if l.name == lvl {
			threshold = Level(i)
			break
		}
	}
	if levels[threshold].name != lvl {
		fmt.Printf("pkg/log: Flag 'loglevel' has invalid value %#v\npkg/log: Will use default loglevel 'debug'\n", lvl)
		threshold = LevelDebug
	}
	for i, l := range levels {
		if Level(i) < threshold {
			l.writer = io.Discard
		} else {
			l.writer = os.Stderr
		}
		l.plain = log.New(l.writer, l.prefix, l.flags)
		l.timed = log.New(l.writer, l.prefix, l.flags|log.LstdFlags)
	}
}

func SetLogDateTime(logdate bool) {
	logDateTime = logdate
}

func (l *level) output(s string) {
	if l.writer == io.Discard {
		return
	}
	if logDateTime {
		l.timed.Output(3, s)
	} else {
		l.plain.Output(3, s)
	}
}

func Debug(v ...interface{})  { levels[LevelDebug].output(fmt.Sprint(v...)) }
func Info(v ...interface{})   { levels[LevelInfo].output(fmt.Sprint(v...)) }
func Note(v ...interface{})   { levels[LevelNotice].output(fmt.Sprint(v...)) }
func Warn(v ...interface{})   { levels[LevelWarn].output(fmt.Sprint(v...)) }
func Error(v ...interface{})  { levels[LevelErr].output(fmt.Sprint(v...)) }
func Crit(v ...interface{})   { levels[LevelCrit].output(fmt.Sprint(v...)) }
func Print(v ...interface{})  { Info(v...) }

func Debugf(format string, v ...interface{})  { levels[LevelDebug].output(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})   { levels[LevelInfo].output(fmt.Sprintf(format, v...)) }
func Notef(format string, v ...interface{})   { levels[LevelNotice].output(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})   { levels[LevelWarn].output(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{})  { levels[LevelErr].output(fmt.Sprintf(format, v...)) }
func Critf(format string, v ...interface{})   { levels[LevelCrit].output(fmt.Sprintf(format, v...)) }
func Printf(format string, v ...interface{})  { Infof(format, v...) }

// Panic writes an error log entry and then panics, keeping the process alive
// through a recover if the caller installs one.
func Panic(v ...interface{}) {
	Error(v...)
	panic("Panic triggered ...")
}

func Panicf(format string, v ...interface{}) {
	Errorf(format, v...)
	panic("Panic triggered ...")
}

// Fatal writes an error log entry and terminates the process.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
