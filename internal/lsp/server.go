package lsp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	lsp "github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"obi.dev/obi"
)

var (
	errMethodNotFound = &jsonrpc2.Error{
		Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	errInvalidParams = &jsonrpc2.Error{
		Code: jsonrpc2.CodeInvalidParams, Message: "invalid params"}
)

type server struct {
	logger  *slog.Logger
	mutex   sync.Mutex
	content map[lsp.DocumentURI]string
}

func newServer(logger *slog.Logger) *server {
	return &server{logger: logger, content: make(map[lsp.DocumentURI]string)}
}

func handler(s *server) jsonrpc2.Handler {
	return routingHandler(s.logger, map[string]method{
		"initialize":             s.initialize,
		"shutdown":               noop,
		"exit":                   exit,
		"textDocument/didOpen":   s.didOpen,
		"textDocument/didChange": s.didChange,
		"textDocument/didClose":  s.didClose,

		"initialized":                     noop,
		"workspace/didChangeWatchedFiles": noop,
	})
}

type method func(context.Context, jsonrpc2.JSONRPC2, json.RawMessage) (any, error)

func noop(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return nil, nil
}

func exit(_ context.Context, conn jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return nil, conn.Close()
}

func routingHandler(logger *slog.Logger, methods map[string]method) jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		logger.Debug("lsp request", "method", req.Method, "notification", req.Notif)
		fn, ok := methods[req.Method]
		if !ok {
			return nil, errMethodNotFound
		}
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		return fn(ctx, conn, params)
	})
}

func (s *server) initialize(_ context.Context, _ jsonrpc2.JSONRPC2, _ json.RawMessage) (any, error) {
	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
				Options: &lsp.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    lsp.TDSKFull,
				},
			},
		},
	}, nil
}

func (s *server) update(uri lsp.DocumentURI, content string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.content[uri] = content
}

func (s *server) didOpen(ctx context.Context, conn jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidOpenTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}

	uri, content := params.TextDocument.URI, params.TextDocument.Text
	s.update(uri, content)
	go publishDiagnostics(ctx, conn, uri, content)
	return nil, nil
}

func (s *server) didChange(ctx context.Context, conn jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidChangeTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil || len(params.ContentChanges) == 0 {
		return nil, errInvalidParams
	}

	// Only full-text sync is advertised.
	uri, content := params.TextDocument.URI, params.ContentChanges[len(params.ContentChanges)-1].Text
	s.update(uri, content)
	go publishDiagnostics(ctx, conn, uri, content)
	return nil, nil
}

func (s *server) didClose(ctx context.Context, conn jsonrpc2.JSONRPC2, rawParams json.RawMessage) (any, error) {
	var params lsp.DidCloseTextDocumentParams
	if json.Unmarshal(rawParams, &params) != nil {
		return nil, errInvalidParams
	}

	s.mutex.Lock()
	delete(s.content, params.TextDocument.URI)
	s.mutex.Unlock()
	go conn.Notify(ctx, "textDocument/publishDiagnostics",
		lsp.PublishDiagnosticsParams{URI: params.TextDocument.URI, Diagnostics: []lsp.Diagnostic{}})
	return nil, nil
}

func publishDiagnostics(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, content string) {
	conn.Notify(ctx, "textDocument/publishDiagnostics",
		lsp.PublishDiagnosticsParams{URI: uri, Diagnostics: diagnostics(uri, content)})
}

func diagnostics(uri lsp.DocumentURI, content string) []lsp.Diagnostic {
	errs := obi.Check(content, string(uri))
	diags := make([]lsp.Diagnostic, len(errs))
	for i, err := range errs {
		start := lspPosition(content, err.Location)
		end := start
		end.Character++
		diags[i] = lsp.Diagnostic{
			Range:    lsp.Range{Start: start, End: end},
			Severity: lsp.Error,
			Source:   "obi",
			Message:  err.Message(),
		}
	}
	return diags
}

// Converts a one-based line and character column to a zero-based position
// counted in UTF-16 units.
func lspPosition(content string, location *obi.SourceLocation) lsp.Position {
	if location == nil {
		return lsp.Position{}
	}
	lines := strings.Split(content, "\n")
	line := location.Line - 1
	if line < 0 {
		line = 0
	}
	if line >= len(lines) {
		return lsp.Position{Line: line, Character: location.Column - 1}
	}

	character := 0
	text := lines[line]
	for column := 1; column < location.Column && len(text) > 0; column++ {
		r, size := utf8.DecodeRuneInString(text)
		text = text[size:]
		if r <= 0xFFFF {
			character++
		} else {
			character += 2
		}
	}
	return lsp.Position{Line: line, Character: character}
}
