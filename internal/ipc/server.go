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
	"sync"
	"time"

	"memecat/internal/catalog"
	"memecat/internal/daemon"
	"memecat/internal/dedup"
	"memecat/internal/fingerprint"
	"memecat/internal/logging"
	"memecat/internal/logs"
	"memecat/internal/merge"
)

const serviceName = "Memecat"

// Facade is the daemon surface the IPC server exposes.
type Facade interface {
	Status(ctx context.Context) daemon.Status
	LogPath() string
	ListItems(ctx context.Context, filter catalog.ItemFilter) ([]*catalog.Item, error)
	GetItem(ctx context.Context, filename string) (*catalog.Item, error)
	UpdateItem(ctx context.Context, filename string, patch catalog.ItemPatch) (*catalog.Item, error)
	DeleteItem(ctx context.Context, filename string) ([]string, error)
	DuplicatesOf(ctx context.Context, filename string) (*dedup.Neighborhood, error)
	ListGroups(ctx context.Context) ([]dedup.GroupSummary, error)
	MarkNotDuplicate(ctx context.Context, filename string) (*catalog.Item, error)
	Merge(ctx context.Context, req merge.Request) (*merge.Result, error)
	MarkFalsePositive(ctx context.Context, a, b string) error
	ListPairExceptions(ctx context.Context) ([]catalog.PairException, error)
	RemovePairException(ctx context.Context, a, b string) (bool, error)
	RecomputeFingerprint(ctx context.Context, filename string) (fingerprint.Fingerprint, error)
	TriggerSync(ctx context.Context) error
	SyncRuns(ctx context.Context, limit int) ([]*catalog.SyncRun, error)
	ExportListing(ctx context.Context) (int, error)
}

var _ Facade = (*daemon.Daemon)(nil)

// ServerOption customizes a Server.
type ServerOption func(*service)

// WithShutdown registers the callback run when a client asks the daemon to
// stop. Without it Stop requests are refused.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) { s.shutdown = fn }
}

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
func NewServer(ctx context.Context, path string, facade Facade, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if facade == nil {
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
	svc := &service{facade: facade, logger: logger, ctx: serverCtx}
	for _, opt := range opts {
		opt(svc)
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		cancel()
		_ = listener.Close()
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

// Serve starts accepting RPC connections until Close is called.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				time.Sleep(100 * time.Millisecond)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
			}()
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	facade   Facade
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.facade.Status(s.ctx)
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	if s.shutdown == nil {
		return errors.New("daemon does not accept remote stop requests")
	}
	s.logger.Info("daemon stop requested via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	// Reply before shutdown tears down the listener.
	go s.shutdown()
	resp.Stopping = true
	return nil
}

func (s *service) ListItems(req ItemListRequest, resp *ItemListResponse) error {
	items, err := s.facade.ListItems(s.ctx, catalog.ItemFilter{
		Category:    req.Category,
		Unprocessed: req.Unprocessed,
		GroupedOnly: req.GroupedOnly,
		Limit:       req.Limit,
		Offset:      req.Offset,
	})
	if err != nil {
		return err
	}
	resp.Items = items
	return nil
}

func (s *service) GetItem(req ItemRequest, resp *ItemResponse) error {
	item, err := s.facade.GetItem(s.ctx, req.Filename)
	if err != nil {
		return err
	}
	resp.Item = item
	return nil
}

func (s *service) UpdateItem(req ItemUpdateRequest, resp *ItemResponse) error {
	item, err := s.facade.UpdateItem(s.ctx, req.Filename, req.Patch)
	if err != nil {
		return err
	}
	resp.Item = item
	return nil
}

func (s *service) DeleteItem(req ItemRequest, resp *ItemDeleteResponse) error {
	dissolved, err := s.facade.DeleteItem(s.ctx, req.Filename)
	if err != nil {
		return err
	}
	resp.Dissolved = dissolved
	return nil
}

func (s *service) Duplicates(req ItemRequest, resp *DuplicatesResponse) error {
	hood, err := s.facade.DuplicatesOf(s.ctx, req.Filename)
	if err != nil {
		return err
	}
	resp.Neighborhood = hood
	return nil
}

func (s *service) Groups(_ GroupsRequest, resp *GroupsResponse) error {
	groups, err := s.facade.ListGroups(s.ctx)
	if err != nil {
		return err
	}
	resp.Groups = groups
	return nil
}

func (s *service) MarkNotDuplicate(req ItemRequest, resp *ItemResponse) error {
	item, err := s.facade.MarkNotDuplicate(s.ctx, req.Filename)
	if err != nil {
		return err
	}
	resp.Item = item
	return nil
}

func (s *service) Merge(req MergeRequest, resp *MergeResponse) error {
	result, err := s.facade.Merge(s.ctx, req)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) AddPairException(req PairRequest, resp *PairResponse) error {
	if err := s.facade.MarkFalsePositive(s.ctx, req.FilenameA, req.FilenameB); err != nil {
		return err
	}
	resp.Changed = true
	return nil
}

func (s *service) RemovePairException(req PairRequest, resp *PairResponse) error {
	removed, err := s.facade.RemovePairException(s.ctx, req.FilenameA, req.FilenameB)
	if err != nil {
		return err
	}
	resp.Changed = removed
	return nil
}

func (s *service) PairExceptions(_ PairListRequest, resp *PairListResponse) error {
	pairs, err := s.facade.ListPairExceptions(s.ctx)
	if err != nil {
		return err
	}
	resp.Pairs = pairs
	return nil
}

func (s *service) Recompute(req ItemRequest, resp *RecomputeResponse) error {
	fp, err := s.facade.RecomputeFingerprint(s.ctx, req.Filename)
	if err != nil {
		return err
	}
	resp.Fingerprint = fp.String()
	return nil
}

func (s *service) TriggerSync(_ SyncRequest, resp *SyncResponse) error {
	if err := s.facade.TriggerSync(s.ctx); err != nil {
		return err
	}
	resp.Queued = true
	return nil
}

func (s *service) SyncRuns(req RunsRequest, resp *RunsResponse) error {
	runs, err := s.facade.SyncRuns(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Runs = runs
	return nil
}

func (s *service) Export(_ ExportRequest, resp *ExportResponse) error {
	n, err := s.facade.ExportListing(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = n
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.facade.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
