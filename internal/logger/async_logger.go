// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"fmt"
	"io"
	"os"
)

// AsyncLogger decouples a hot path from the latency of its eventual sink
// (typically a rotating file): Write copies into a bounded channel and
// returns immediately, while a single background goroutine drains it. A
// full buffer drops the message rather than blocking the caller, so a
// slow disk never stalls the code that logs.
type AsyncLogger struct {
	sink   io.WriteCloser
	buf    chan []byte
	done   chan struct{}
	closed chan struct{}
}

// NewAsyncLogger starts the drain goroutine writing to sink, buffering up
// to bufferSize pending writes.
func NewAsyncLogger(sink io.WriteCloser, bufferSize int) *AsyncLogger {
	l := &AsyncLogger{
		sink:   sink,
		buf:    make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *AsyncLogger) run() {
	defer close(l.closed)
	for {
		select {
		case b, ok := <-l.buf:
			if !ok {
				return
			}
			l.sink.Write(b)
		case <-l.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case b := <-l.buf:
					l.sink.Write(b)
				default:
					return
				}
			}
		}
	}
}

// Write copies p into the async buffer, or drops it (with a warning to
// stderr) if the buffer is full.
func (l *AsyncLogger) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)

	select {
	case l.buf <- cp:
		return len(p), nil
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
		return len(p), nil
	}
}

// Close signals the drain goroutine to flush and exit, waits for it, and
// closes the underlying sink.
func (l *AsyncLogger) Close() error {
	close(l.done)
	<-l.closed
	return l.sink.Close()
}
