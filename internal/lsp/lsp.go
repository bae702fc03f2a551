// Package lsp implements a language server that publishes the static
// diagnostics of Obi documents.
package lsp

import (
	"context"
	"io"
	"log/slog"

	"github.com/sourcegraph/jsonrpc2"
)

// Serve speaks the protocol over stream until the client disconnects or
// sends exit.
func Serve(ctx context.Context, stream io.ReadWriteCloser, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := newServer(logger)
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		handler(s))
	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		conn.Close()
	}
	return nil
}

// Transport joins a reader and a writer, such as stdin and stdout. Close
// closes whichever of the two are closers.
type Transport struct {
	In  io.Reader
	Out io.Writer
}

func (c Transport) Read(p []byte) (int, error)  { return c.In.Read(p) }
func (c Transport) Write(p []byte) (int, error) { return c.Out.Write(p) }

func (c Transport) Close() error {
	var err error
	if closer, ok := c.In.(io.Closer); ok {
		err = closer.Close()
	}
	if closer, ok := c.Out.(io.Closer); ok {
		if outErr := closer.Close(); err == nil {
			err = outErr
		}
	}
	return err
}
