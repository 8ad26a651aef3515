package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dreamsxin/memrecycle/policy"
	"github.com/dreamsxin/memrecycle/types"
)

// ServiceName is the JSON-RPC service name
const ServiceName = "Recycler"

// Controller is the part of the recycle controller exposed over IPC
type Controller interface {
	Trigger(ctx context.Context, kind types.TriggerKind) (types.CycleResult, error)
	ChangePolicy(field policy.Field, value string) (types.Policy, error)
	Display() types.Display
}

// Server exposes the controller via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    zerolog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer listens on path. processes is the list offered as process choices.
func NewServer(ctx context.Context, path string, ctrl Controller, processes []string, logger zerolog.Logger) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("ipc server requires a controller")
	}
	logger = logger.With().Str("component", "ipc").Logger()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{ctrl: ctrl, processes: processes, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting RPC connections until Close is called or the context ends.
func (s *Server) Serve() {
	s.logger.Debug().Str("socket", s.path).Msg("IPC server listening")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn().Err(err).Msg("Accept failed")
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()

	// idle clients would otherwise keep ServeCodec blocked
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn().Err(err).Str("socket", s.path).Msg("Failed to remove socket")
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

type service struct {
	ctrl      Controller
	processes []string
	logger    zerolog.Logger
	ctx       context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	d := s.ctrl.Display()
	resp.Display = d
	resp.Line = DisplayLine(d)
	return nil
}

func (s *service) Recycle(_ RecycleRequest, resp *RecycleResponse) error {
	s.logger.Info().Msg("Manual recycle requested")
	res, err := s.ctrl.Trigger(s.ctx, types.TriggerManual)
	if err != nil {
		return err
	}
	resp.Outcome = res.Outcome.String()
	resp.Result = res
	return nil
}

func (s *service) SetPolicy(req SetPolicyRequest, resp *SetPolicyResponse) error {
	field, err := policy.ParseField(req.Field)
	if err != nil {
		return err
	}

	p, err := s.ctrl.ChangePolicy(field, req.Value)
	if err != nil {
		if !errors.Is(err, policy.ErrPersistFailed) {
			return err
		}
		resp.Warning = err.Error()
	}
	resp.Policy = p
	return nil
}

func (s *service) Choices(req ChoicesRequest, resp *ChoicesResponse) error {
	fields := policy.Fields
	if req.Field != "" {
		field, err := policy.ParseField(req.Field)
		if err != nil {
			return err
		}
		fields = []policy.Field{field}
	}

	p := s.ctrl.Display().Policy
	for _, field := range fields {
		resp.Groups = append(resp.Groups, ChoiceGroup{
			Field:   string(field),
			Current: policy.Label(field, p),
			Choices: policy.Choices(field, p, s.processes),
		})
	}
	return nil
}

// DisplayLine renders the status line shown to the operator
func DisplayLine(d types.Display) string {
	if !d.Running {
		return fmt.Sprintf("%s is not running", d.ProcessName)
	}
	return types.MemorySample{ProcessName: d.ProcessName, ValueMB: d.SampleMB}.String()
}
