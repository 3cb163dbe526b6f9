package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"feedrelay/internal/actionstate"
	"feedrelay/internal/daemon"
	"feedrelay/internal/engine"
	"feedrelay/internal/logging"
	"feedrelay/internal/pipeline"
	"feedrelay/internal/services"
)

const serviceName = "FeedRelay"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
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
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Open client
// connections are served until the clients hang up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// request returns a context carrying a fresh correlation id.
func (s *service) request(method string) (context.Context, *slog.Logger) {
	id := uuid.NewString()
	ctx := services.WithRequestID(s.ctx, id)
	logger := logging.WithContext(ctx, s.logger).With(logging.String("method", method))
	logger.Debug("ipc request")
	return ctx, logger
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, _ := s.request("Status")
	status := s.daemon.Status(ctx)
	*resp = StatusResponse{
		Running:        status.Running,
		PID:            status.PID,
		StartedAt:      status.StartedAt,
		LockPath:       status.LockPath,
		DatabasePath:   status.DatabasePath,
		Records:        status.Records,
		InFlight:       status.InFlight,
		Waiting:        status.Waiting,
		Capacity:       status.Capacity,
		UpdatesHandled: status.UpdatesHandled,
		LastPollError:  status.LastPollError,
		MetricsAddr:    status.MetricsAddr,
		Operations:     fromSnapshots(status.Operations),
	}
	return nil
}

func (s *service) Deliver(req DeliverRequest, resp *DeliverResponse) error {
	ctx, logger := s.request("Deliver")
	item := req.Item
	item.Normalize()
	if err := item.Validate(); err != nil {
		return err
	}
	var opts *pipeline.Options
	if req.Options != nil {
		opts = &pipeline.Options{
			SendAsFile:       req.Options.SendAsFile,
			IncludeLiveMedia: req.Options.IncludeLiveMedia,
			UseAlternateLink: req.Options.UseAlternateLink,
			BatchSize:        req.Options.BatchSize,
		}
	}
	report, err := s.daemon.Deliver(ctx, engine.DeliverRequest{
		ChatID:  strings.TrimSpace(req.ChatID),
		Item:    &item,
		Options: opts,
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		return err
	}
	res := report.Result
	*resp = DeliverResponse{
		Status:           string(res.Status),
		Strategy:         string(res.Strategy),
		PrimaryKey:       report.PrimaryKey,
		Messages:         len(res.Messages),
		Delivered:        len(res.Delivered),
		Failed:           len(res.Failed),
		TransferredBytes: res.TransferredBytes,
		Summary:          res.Summary,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	if report.PersistErr != nil {
		resp.PersistError = report.PersistErr.Error()
	}
	logger.Info("delivery requested via IPC",
		logging.String(logging.FieldEventType, "ipc_deliver"),
		logging.String("status", resp.Status),
		logging.String(logging.FieldPrimaryKey, resp.PrimaryKey),
	)
	return nil
}

func (s *service) Trigger(req TriggerRequest, resp *TriggerResponse) error {
	ctx, _ := s.request("Trigger")
	kind, ok := actionstate.ParseActionKind(strings.TrimSpace(req.Action))
	if !ok {
		return fmt.Errorf("unknown action %q", req.Action)
	}
	decision, err := s.daemon.Engine().Trigger(ctx, strings.TrimSpace(req.Key), kind)
	*resp = TriggerResponse{
		Accepted: decision.Accepted,
		Reason:   string(decision.Reason),
		Message:  decision.Message(),
	}
	if err != nil {
		return err
	}
	return nil
}

func (s *service) Pause(req ControlRequest, resp *ControlResponse) error {
	ctx, _ := s.request("Pause")
	changed, err := s.daemon.Engine().Pause(ctx, strings.TrimSpace(req.Key))
	resp.Changed = changed
	return err
}

func (s *service) Resume(req ControlRequest, resp *ControlResponse) error {
	ctx, _ := s.request("Resume")
	changed, err := s.daemon.Engine().Resume(ctx, strings.TrimSpace(req.Key))
	resp.Changed = changed
	return err
}

func (s *service) Cancel(req ControlRequest, resp *ControlResponse) error {
	ctx, _ := s.request("Cancel")
	changed, err := s.daemon.Engine().Cancel(ctx, strings.TrimSpace(req.Key))
	resp.Changed = changed
	return err
}

func (s *service) Operations(_ OperationsRequest, resp *OperationsResponse) error {
	s.request("Operations")
	resp.Operations = fromSnapshots(s.daemon.Engine().Operations())
	return nil
}

func (s *service) RecordList(req RecordListRequest, resp *RecordListResponse) error {
	ctx, _ := s.request("RecordList")
	records, err := s.daemon.ListRecords(ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Records = make([]Record, 0, len(records))
	for _, r := range records {
		resp.Records = append(resp.Records, fromRecord(r))
	}
	return nil
}

func (s *service) RecordShow(req RecordShowRequest, resp *RecordShowResponse) error {
	ctx, _ := s.request("RecordShow")
	record, err := s.daemon.Record(ctx, strings.TrimSpace(req.Key))
	if err != nil {
		return err
	}
	resp.Record = fromRecord(record)
	return nil
}

func (s *service) RecordDelete(req RecordDeleteRequest, resp *RecordDeleteResponse) error {
	ctx, logger := s.request("RecordDelete")
	primary, err := s.daemon.DeleteRecord(ctx, strings.TrimSpace(req.Key))
	if err != nil {
		return err
	}
	resp.PrimaryKey = primary
	logger.Info("record deleted via IPC",
		logging.String(logging.FieldEventType, "record_deleted"),
		logging.String(logging.FieldPrimaryKey, primary),
	)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	ctx, _ := s.request("TestNotification")
	sent, message, err := s.daemon.TestNotification(ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
