package builtin

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"obi.dev/obi"
)

const (
	readBufferSize = 64 * 1024
	fetchTimeout   = 30 * time.Second
)

type tcpServer struct {
	listener net.Listener
	done     chan struct{}
	once     sync.Once
}

func (self *tcpServer) close() {
	self.once.Do(func() { close(self.done) })
}

// Accepts until the listener is closed. Every connection is handed to the
// handler on the evaluator flow.
func (self *tcpServer) accept(ctx *obi.Context, handler obi.Callable) error {
	for {
		conn, err := self.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		ctx.Logger.Debug("tcp connection accepted", "remote", conn.RemoteAddr().String())
		ctx.WaitGroup.Post(func() error {
			_, err := ctx.Call(handler, newConnection(ctx, conn))
			return err
		})
	}
}

// listen_tcp(host, port, handler) keeps the program alive until the
// returned listener is closed.
func listenTCP(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	host, err := stringArg(ctx, "listen_tcp", args, 0)
	if err != nil {
		return nil, err
	}
	port, err := numberArg(ctx, "listen_tcp", args, 1)
	if err != nil {
		return nil, err
	}
	handler, err := callableArg(ctx, "listen_tcp", args, 2)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, ctx.Errorf(nil, "listen_tcp: %v", err)
	}
	server := &tcpServer{
		listener: listener,
		done:     make(chan struct{}),
	}

	ctx.WaitGroup.Add(1)
	group, groupCtx := errgroup.WithContext(context.Background())
	group.Go(func() error {
		return server.accept(ctx, handler)
	})
	group.Go(func() error {
		select {
		case <-server.done:
		case <-groupCtx.Done():
		}
		return listener.Close()
	})
	go func() {
		err := group.Wait()
		ctx.WaitGroup.Finish(func() error {
			if err != nil && !errors.Is(err, net.ErrClosed) {
				ctx.Logger.Warn("tcp listener stopped", "address", listener.Addr().String(), "error", err)
			}
			return nil
		})
	}()

	address := listener.Addr().(*net.TCPAddr)
	return record(ctx,
		"host", ctx.NewString(host),
		"port", ctx.NewNumber(float64(address.Port)),
		"close", ctx.NewBuiltin("close", 0, func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
			server.close()
			return nil, nil
		}),
	), nil
}

func newConnection(ctx *obi.Context, conn net.Conn) *obi.Table {
	var closed atomic.Bool

	write := func(data []byte) {
		if closed.Load() {
			return
		}
		if _, err := conn.Write(data); err != nil {
			ctx.Logger.Warn("tcp write failed", "remote", conn.RemoteAddr().String(), "error", err)
		}
	}

	return record(ctx,
		"remote", ctx.NewString(conn.RemoteAddr().String()),
		"write_string", ctx.NewBuiltin("write_string", 1, func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
			s, err := stringArg(ctx, "write_string", args, 0)
			if err != nil {
				return nil, err
			}
			write([]byte(s))
			return nil, nil
		}),
		"write", ctx.NewBuiltin("write", 1, func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
			b, err := bytesArg(ctx, "write", args, 0)
			if err != nil {
				return nil, err
			}
			write(b)
			return nil, nil
		}),
		"on_data", ctx.NewBuiltin("on_data", 1, func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
			receiver, err := callableArg(ctx, "on_data", args, 0)
			if err != nil {
				return nil, err
			}
			if closed.Load() {
				return nil, nil
			}

			ctx.WaitGroup.Add(1)
			go func() {
				buffer := make([]byte, readBufferSize)
				n, err := conn.Read(buffer)
				if err != nil {
					if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
						ctx.Logger.Warn("tcp read failed", "remote", conn.RemoteAddr().String(), "error", err)
					}
					closed.Store(true)
					ctx.WaitGroup.Done()
					return
				}
				data := buffer[:n]
				ctx.WaitGroup.Finish(func() error {
					_, err := ctx.Call(receiver, ctx.NewBytes(data))
					return err
				})
			}()
			return nil, nil
		}),
		"close", ctx.NewBuiltin("close", 0, func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
			if closed.Swap(true) {
				return nil, nil
			}
			return nil, conn.Close()
		}),
	)
}

func httpGet(client *http.Client, url string) (int, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	response, err := client.Do(request)
	if err != nil {
		return 0, "", err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, "", err
	}
	return response.StatusCode, string(body), nil
}

// fetch(url, callback) calls back with [status =, body =] or [error =].
func fetch(options Options) obi.BuiltinFunc {
	return func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
		url, err := stringArg(ctx, "fetch", args, 0)
		if err != nil {
			return nil, err
		}
		callback, err := callableArg(ctx, "fetch", args, 1)
		if err != nil {
			return nil, err
		}

		ctx.WaitGroup.Add(1)
		go func() {
			status, body, err := httpGet(options.HTTPClient, url)
			ctx.WaitGroup.Finish(func() error {
				var result *obi.Table
				if err != nil {
					result = record(ctx, "error", ctx.NewString(err.Error()))
				} else {
					result = record(ctx,
						"status", ctx.NewNumber(float64(status)),
						"body", ctx.NewString(body),
					)
				}
				_, err := ctx.Call(callback, result)
				return err
			})
		}()
		return nil, nil
	}
}
