package debugsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Client calls the debug service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetStatus"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUEMetrics(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetUEMetrics"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDLBufferState reports newTx pending bytes on lcid of rnti.
func (c *Client) SetDLBufferState(ctx context.Context, rnti uint16, lcid uint32, newTx, retx int, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{
		"rnti":   int(rnti),
		"lcid":   int(lcid),
		"new_tx": newTx,
		"retx":   retx,
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, fullMethod("SetDLBufferState"), in, new(emptypb.Empty), opts...)
}

func (c *Client) GetSlotTime(ctx context.Context, opts ...grpc.CallOption) (*timestamppb.Timestamp, error) {
	out := new(timestamppb.Timestamp)
	if err := c.cc.Invoke(ctx, fullMethod("GetSlotTime"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSlotDigest returns the hex digest recorded for slot on cell cc.
func (c *Client) GetSlotDigest(ctx context.Context, slot uint32, cc int, opts ...grpc.CallOption) (string, error) {
	in, err := structpb.NewStruct(map[string]any{"slot": int64(slot), "cc": cc})
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetSlotDigest"), in, out, opts...); err != nil {
		return "", err
	}
	return out.GetFields()["digest"].GetStringValue(), nil
}
