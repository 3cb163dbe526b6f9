package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
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
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
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

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Deliver submits an item and waits for the delivery to finish.
func (c *Client) Deliver(req DeliverRequest) (*DeliverResponse, error) {
	return call[DeliverResponse](c, "Deliver", req)
}

// Trigger requests a follow-up action on the record owning key.
func (c *Client) Trigger(key, action string) (*TriggerResponse, error) {
	return call[TriggerResponse](c, "Trigger", TriggerRequest{Key: key, Action: action})
}

// Pause pauses the transfer whose status message has key.
func (c *Client) Pause(key string) (*ControlResponse, error) {
	return call[ControlResponse](c, "Pause", ControlRequest{Key: key})
}

// Resume resumes a paused transfer.
func (c *Client) Resume(key string) (*ControlResponse, error) {
	return call[ControlResponse](c, "Resume", ControlRequest{Key: key})
}

// Cancel cancels a running transfer.
func (c *Client) Cancel(key string) (*ControlResponse, error) {
	return call[ControlResponse](c, "Cancel", ControlRequest{Key: key})
}

// Operations lists in-flight transfers.
func (c *Client) Operations() (*OperationsResponse, error) {
	return call[OperationsResponse](c, "Operations", OperationsRequest{})
}

// RecordList returns up to limit recent records.
func (c *Client) RecordList(limit int) (*RecordListResponse, error) {
	return call[RecordListResponse](c, "RecordList", RecordListRequest{Limit: limit})
}

// RecordShow resolves key to its record.
func (c *Client) RecordShow(key string) (*RecordShowResponse, error) {
	return call[RecordShowResponse](c, "RecordShow", RecordShowRequest{Key: key})
}

// RecordDelete removes the record owning key.
func (c *Client) RecordDelete(key string) (*RecordDeleteResponse, error) {
	return call[RecordDeleteResponse](c, "RecordDelete", RecordDeleteRequest{Key: key})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
