// Package logger implements a per-import in-memory log buffer.
//
// Detail lines are buffered while a file is being parsed.  If the import
// fails, the buffer is replayed so the operator sees the whole story; if it
// succeeds, the buffer is dropped and a single summary line is written.
//
// Thread safety comes from a dedicated logger goroutine fed by a command
// channel — no mutexes.
package logger

import (
	"bytes"
	"log"
	"strings"
	"time"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act      action
	importID string
	message  string
	filename string
	err      error
	when     time.Time
}

// Buffered channel absorbs bursts from concurrent imports.
var ch = make(chan cmd, 128)

// Begin starts buffering for an import ID.
func Begin(importID string) { ch <- cmd{act: actBegin, importID: importID, when: time.Now()} }

// Append adds one detail line to the buffer.
func Append(importID, msg string) {
	ch <- cmd{act: actAppend, importID: importID, message: msg, when: time.Now()}
}

// Success drops the buffer and writes one short summary line.
func Success(importID, filename string) {
	ch <- cmd{act: actSuccess, importID: importID, filename: filename, when: time.Now()}
}

// FlushError replays the buffered detail followed by the final error.
func FlushError(importID string, err error) {
	ch <- cmd{act: actFlushErr, importID: importID, err: err, when: time.Now()}
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.importID] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.importID]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message) // no buffer → write through
			}

		case actSuccess:
			log.Printf("[%-6s][import] processed %q", c.importID, c.filename)
			delete(buffers, c.importID)

		case actFlushErr:
			if b := buffers[c.importID]; b != nil {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				for _, ln := range lines {
					log.Print(ln)
				}
				delete(buffers, c.importID)
			}
			log.Printf("[%-6s][error] %v", c.importID, c.err)
		}
	}
}
