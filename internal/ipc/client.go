package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"memecat/internal/catalog"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[T any](c *Client, method string, req any) (*T, error) {
	var resp T
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// ListItems lists catalog items.
func (c *Client) ListItems(req ItemListRequest) (*ItemListResponse, error) {
	return call[ItemListResponse](c, "ListItems", req)
}

// GetItem fetches one item.
func (c *Client) GetItem(filename string) (*ItemResponse, error) {
	return call[ItemResponse](c, "GetItem", ItemRequest{Filename: filename})
}

// UpdateItem edits descriptive metadata.
func (c *Client) UpdateItem(filename string, patch catalog.ItemPatch) (*ItemResponse, error) {
	return call[ItemResponse](c, "UpdateItem", ItemUpdateRequest{Filename: filename, Patch: patch})
}

// DeleteItem removes an item from the remote store and the catalog.
func (c *Client) DeleteItem(filename string) (*ItemDeleteResponse, error) {
	return call[ItemDeleteResponse](c, "DeleteItem", ItemRequest{Filename: filename})
}

// Duplicates returns the group co-members of filename.
func (c *Client) Duplicates(filename string) (*DuplicatesResponse, error) {
	return call[DuplicatesResponse](c, "Duplicates", ItemRequest{Filename: filename})
}

// Groups lists every duplicate group.
func (c *Client) Groups() (*GroupsResponse, error) {
	return call[GroupsResponse](c, "Groups", GroupsRequest{})
}

// MarkNotDuplicate detaches filename from its group permanently.
func (c *Client) MarkNotDuplicate(filename string) (*ItemResponse, error) {
	return call[ItemResponse](c, "MarkNotDuplicate", ItemRequest{Filename: filename})
}

// Merge folds duplicates into a primary.
func (c *Client) Merge(req MergeRequest) (*MergeResponse, error) {
	return call[MergeResponse](c, "Merge", req)
}

// AddPairException records that a and b are not duplicates of each other.
func (c *Client) AddPairException(a, b string) (*PairResponse, error) {
	return call[PairResponse](c, "AddPairException", PairRequest{FilenameA: a, FilenameB: b})
}

// RemovePairException forgets a pair exception.
func (c *Client) RemovePairException(a, b string) (*PairResponse, error) {
	return call[PairResponse](c, "RemovePairException", PairRequest{FilenameA: a, FilenameB: b})
}

// PairExceptions lists every pair exception.
func (c *Client) PairExceptions() (*PairListResponse, error) {
	return call[PairListResponse](c, "PairExceptions", PairListRequest{})
}

// Recompute refreshes the fingerprint of filename, bypassing the cache.
func (c *Client) Recompute(filename string) (*RecomputeResponse, error) {
	return call[RecomputeResponse](c, "Recompute", ItemRequest{Filename: filename})
}

// TriggerSync queues an immediate sync run.
func (c *Client) TriggerSync() (*SyncResponse, error) {
	return call[SyncResponse](c, "TriggerSync", SyncRequest{})
}

// SyncRuns lists recent sync runs.
func (c *Client) SyncRuns(limit int) (*RunsResponse, error) {
	return call[RunsResponse](c, "SyncRuns", RunsRequest{Limit: limit})
}

// Export uploads the listing document.
func (c *Client) Export() (*ExportResponse, error) {
	return call[ExportResponse](c, "Export", ExportRequest{})
}

// LogTail fetches daemon log lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}
