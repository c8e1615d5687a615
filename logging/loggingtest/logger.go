// Package loggingtest provides a logging.Logger for tests that records
// every entry and lets the test wait for expected ones.
package loggingtest

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/lcswitch/bfgossip/logging"
)

type logSubscription struct {
	exp      string
	n        int
	response chan<- struct{}
}

type countRequest struct {
	exp      string
	response chan<- int
}

type logWatch struct {
	entries []string
	reqs    []*logSubscription
}

type TestLogger struct {
	fields map[string]any
	save   chan string
	notify chan<- logSubscription
	count  chan<- countRequest
	clear  chan struct{}
	quit   chan struct{}
}

var ErrWaitTimeout = errors.New("timeout")

func (lw *logWatch) save(e string) {
	lw.entries = append(lw.entries, e)
	for i := len(lw.reqs) - 1; i >= 0; i-- {
		req := lw.reqs[i]
		if strings.Contains(e, req.exp) {
			req.n--
			if req.n <= 0 {
				close(req.response)
				lw.reqs = append(lw.reqs[:i], lw.reqs[i+1:]...)
			}
		}
	}
}

func (lw *logWatch) notify(req logSubscription) {
	for i := len(lw.entries) - 1; i >= 0; i-- {
		if strings.Contains(lw.entries[i], req.exp) {
			req.n--
			if req.n == 0 {
				break
			}
		}
	}

	if req.n <= 0 {
		close(req.response)
	} else {
		lw.reqs = append(lw.reqs, &req)
	}
}

func (lw *logWatch) count(exp string) int {
	var n int
	for _, e := range lw.entries {
		if strings.Contains(e, exp) {
			n++
		}
	}

	return n
}

func (lw *logWatch) clear() {
	lw.entries = nil
	lw.reqs = nil
}

func New() *TestLogger {
	lw := &logWatch{}
	save := make(chan string)
	notify := make(chan logSubscription)
	count := make(chan countRequest)
	clear := make(chan struct{})
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case e := <-save:
				lw.save(e)
			case req := <-notify:
				lw.notify(req)
			case req := <-count:
				req.response <- lw.count(req.exp)
			case <-clear:
				lw.clear()
			case <-quit:
				return
			}
		}
	}()

	return &TestLogger{
		save:   save,
		notify: notify,
		count:  count,
		clear:  clear,
		quit:   quit,
	}
}

func (tl *TestLogger) suffix() string {
	if len(tl.fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(tl.fields))
	for k := range tl.fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, tl.fields[k])
	}

	return b.String()
}

func (tl *TestLogger) store(level, msg string) {
	e := level + ": " + msg + tl.suffix()
	log.Println(e)
	select {
	case tl.save <- e:
	case <-tl.quit:
	}
}

func (tl *TestLogger) logf(level, f string, a ...any) { tl.store(level, fmt.Sprintf(f, a...)) }
func (tl *TestLogger) log(level string, a ...any)     { tl.store(level, fmt.Sprint(a...)) }

// WaitForN waits until at least n entries containing exp were logged,
// counting the ones logged before the call, too.
func (tl *TestLogger) WaitForN(exp string, n int, to time.Duration) error {
	found := make(chan struct{}, 1)
	tl.notify <- logSubscription{exp, n, found}

	select {
	case <-found:
		return nil
	case <-time.After(to):
		return ErrWaitTimeout
	}
}

func (tl *TestLogger) WaitFor(exp string, to time.Duration) error {
	return tl.WaitForN(exp, 1, to)
}

// Count returns the number of entries logged so far that contain exp.
func (tl *TestLogger) Count(exp string) int {
	rsp := make(chan int, 1)
	tl.count <- countRequest{exp, rsp}
	return <-rsp
}

func (tl *TestLogger) Reset() {
	tl.clear <- struct{}{}
}

func (tl *TestLogger) Close() {
	close(tl.quit)
}

func (tl *TestLogger) Error(a ...any)            { tl.log("error", a...) }
func (tl *TestLogger) Errorf(f string, a ...any) { tl.logf("error", f, a...) }
func (tl *TestLogger) Warn(a ...any)             { tl.log("warn", a...) }
func (tl *TestLogger) Warnf(f string, a ...any)  { tl.logf("warn", f, a...) }
func (tl *TestLogger) Info(a ...any)             { tl.log("info", a...) }
func (tl *TestLogger) Infof(f string, a ...any)  { tl.logf("info", f, a...) }
func (tl *TestLogger) Debug(a ...any)            { tl.log("debug", a...) }
func (tl *TestLogger) Debugf(f string, a ...any) { tl.logf("debug", f, a...) }

// WithFields returns a logger sharing the recorded entries, that appends
// the fields to each of its entries.
func (tl *TestLogger) WithFields(fields map[string]any) logging.Logger {
	c := *tl
	c.fields = maps.Clone(tl.fields)
	if c.fields == nil {
		c.fields = make(map[string]any)
	}

	maps.Copy(c.fields, fields)
	return &c
}
