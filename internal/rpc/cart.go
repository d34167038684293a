package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/ahinestrog/bookstore-orders/internal/cart"
)

const CartServiceName = "cart.Cart"

type CartService interface {
	GetCartByUser(context.Context, *UserRequest) (*Cart, error)
	AddItem(context.Context, *CartItemRequest) (*Cart, error)
	RemoveItem(context.Context, *CartItemRequest) (*Cart, error)
	ClearCart(context.Context, *UserRequest) (*Cart, error)
	DeleteCart(context.Context, *UserRequest) (*Empty, error)
}

var cartDesc = grpc.ServiceDesc{
	ServiceName: CartServiceName,
	HandlerType: (*CartService)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetCartByUser", CartServiceName, CartService.GetCartByUser),
		unary("AddItem", CartServiceName, CartService.AddItem),
		unary("RemoveItem", CartServiceName, CartService.RemoveItem),
		unary("ClearCart", CartServiceName, CartService.ClearCart),
		unary("DeleteCart", CartServiceName, CartService.DeleteCart),
	},
}

type CartServer struct {
	gate *cart.Gate
}

func NewCartServer(gate *cart.Gate) *CartServer { return &CartServer{gate: gate} }

func RegisterCart(s grpc.ServiceRegistrar, srv CartService) {
	s.RegisterService(&cartDesc, srv)
}

func (s *CartServer) GetCartByUser(ctx context.Context, req *UserRequest) (*Cart, error) {
	c, err := s.gate.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return cartToWire(c), nil
}

func (s *CartServer) AddItem(ctx context.Context, req *CartItemRequest) (*Cart, error) {
	c, err := s.gate.AddItem(ctx, req.UserID, req.BookID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return cartToWire(c), nil
}

func (s *CartServer) RemoveItem(ctx context.Context, req *CartItemRequest) (*Cart, error) {
	c, err := s.gate.RemoveItem(ctx, req.UserID, req.BookID)
	if err != nil {
		return nil, toStatus(err)
	}
	return cartToWire(c), nil
}

func (s *CartServer) ClearCart(ctx context.Context, req *UserRequest) (*Cart, error) {
	c, emptied, err := s.gate.ClearCart(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := cartToWire(c)
	out.Emptied = emptied
	return out, nil
}

func (s *CartServer) DeleteCart(ctx context.Context, req *UserRequest) (*Empty, error) {
	if err := s.gate.DeleteCart(ctx, req.UserID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// CartClient is the remote cart used by the order saga.
type CartClient struct {
	invoker
}

func NewCartClient(cc grpc.ClientConnInterface, timeout time.Duration) *CartClient {
	return &CartClient{invoker{cc: cc, service: CartServiceName, timeout: timeout}}
}

func (c *CartClient) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	var out Cart
	if err := c.call(ctx, "GetCartByUser", &UserRequest{UserID: userID}, &out); err != nil {
		return nil, err
	}
	return cartFromWire(&out), nil
}

func (c *CartClient) AddItem(ctx context.Context, userID string, bookID int64, qty int32) (*cart.Cart, error) {
	var out Cart
	if err := c.call(ctx, "AddItem", &CartItemRequest{UserID: userID, BookID: bookID, Quantity: qty}, &out); err != nil {
		return nil, err
	}
	return cartFromWire(&out), nil
}

func (c *CartClient) RemoveItem(ctx context.Context, userID string, bookID int64) (*cart.Cart, error) {
	var out Cart
	if err := c.call(ctx, "RemoveItem", &CartItemRequest{UserID: userID, BookID: bookID}, &out); err != nil {
		return nil, err
	}
	return cartFromWire(&out), nil
}

func (c *CartClient) ClearCart(ctx context.Context, userID string) (*cart.Cart, bool, error) {
	var out Cart
	if err := c.call(ctx, "ClearCart", &UserRequest{UserID: userID}, &out); err != nil {
		return nil, false, err
	}
	return cartFromWire(&out), out.Emptied, nil
}

func (c *CartClient) DeleteCart(ctx context.Context, userID string) error {
	return c.call(ctx, "DeleteCart", &UserRequest{UserID: userID}, &Empty{})
}
