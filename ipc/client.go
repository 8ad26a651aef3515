package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the running daemon.
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
	return nil
}

// Status retrieves the current display state.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call(ServiceName+".Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recycle triggers a manual recycle and waits for its outcome.
func (c *Client) Recycle() (*RecycleResponse, error) {
	var resp RecycleResponse
	if err := c.client.Call(ServiceName+".Recycle", RecycleRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetPolicy changes one policy field.
func (c *Client) SetPolicy(field, value string) (*SetPolicyResponse, error) {
	var resp SetPolicyResponse
	if err := c.client.Call(ServiceName+".SetPolicy", SetPolicyRequest{Field: field, Value: value}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Choices lists the choices for field, or for every field when it is empty.
func (c *Client) Choices(field string) (*ChoicesResponse, error) {
	var resp ChoicesResponse
	if err := c.client.Call(ServiceName+".Choices", ChoicesRequest{Field: field}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
