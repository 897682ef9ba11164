package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shredsink/shredsink/internal/loader"
	"github.com/shredsink/shredsink/internal/message"
	"github.com/shredsink/shredsink/internal/shred"
	"github.com/shredsink/shredsink/internal/stream"
)

// Driver runs the RECORD/STATE message loop: shredding records into
// their stream's spools, and flushing every table through the Loader
// whenever a STATE message is durable.
type Driver struct {
	Loader  *loader.Loader
	Log     *slog.Logger
	Streams map[string]*stream.Stream

	lastState []byte
}

// NewDriver returns a Driver dispatching records to streams (keyed
// "namespace.name", matching StreamKey) and flushing through l.
func NewDriver(l *loader.Loader, streams map[string]*stream.Stream, log *slog.Logger) *Driver {
	return &Driver{Loader: l, Log: log, Streams: streams}
}

// StreamKey builds the dispatch key the Driver looks streams up by.
func StreamKey(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// Run reads envelopes from dec until EOF, shredding RECORD messages
// and flushing + re-emitting STATE messages through w once durable. It
// stops at and returns the first error encountered: an undecodable
// message, a record that fails to shred, or a warehouse/IO failure.
func (d *Driver) Run(ctx context.Context, dec *message.Decoder, w io.Writer) error {
	for {
		env, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("session: reading message: %w", err)
		}

		switch env.Type {
		case message.TypeRecord:
			if err := d.handleRecord(env.Record); err != nil {
				return err
			}

		case message.TypeState:
			if err := d.handleState(ctx, env.State, w); err != nil {
				return err
			}

		default:
			d.Log.Warn("ignoring unrecognized message type", "type", env.Type)
		}
	}

	return d.flushAll(ctx)
}

func (d *Driver) handleRecord(rec *message.Record) error {
	if rec == nil {
		return fmt.Errorf("session: RECORD message missing record body")
	}

	s, ok := d.Streams[StreamKey(rec.Namespace, rec.Stream)]
	if !ok {
		d.Log.Warn("dropping record for unconfigured stream", "namespace", rec.Namespace, "stream", rec.Stream)
		return nil
	}

	if err := shred.ShredRecord(s, *rec); err != nil {
		return fmt.Errorf("session: shredding record for stream %q: %w", rec.Stream, err)
	}
	return nil
}

// handleState flushes every table across every stream, then re-emits
// the checkpoint if it differs from the last one emitted. Per the
// at-least-once checkpoint protocol, a STATE is only ever echoed once
// every record preceding it has been durably loaded.
func (d *Driver) handleState(ctx context.Context, st *message.State, w io.Writer) error {
	if st == nil {
		return fmt.Errorf("session: STATE message missing state body")
	}

	if err := d.flushAll(ctx); err != nil {
		return err
	}

	if bytes.Equal(st.Data, d.lastState) {
		return nil
	}

	env := message.Envelope{Type: message.TypeState, State: st}
	if err := message.Encode(w, env); err != nil {
		return fmt.Errorf("session: emitting state: %w", err)
	}
	d.lastState = append([]byte(nil), st.Data...)
	return nil
}

func (d *Driver) flushAll(ctx context.Context) error {
	for _, s := range d.Streams {
		for _, entry := range s.Tables {
			sp, ok := entry.Spool.(loader.Spooler)
			if !ok {
				return fmt.Errorf("session: spool for table %q does not support flushing", entry.Final.Name)
			}
			if err := d.Loader.Flush(ctx, sp, entry.Final, entry.Staging, s.SyncMode); err != nil {
				return fmt.Errorf("session: flushing table %q: %w", entry.Final.Name, err)
			}
		}
	}
	return nil
}
