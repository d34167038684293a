package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/ahinestrog/bookstore-orders/internal/order"
)

const OrderServiceName = "order.Order"

type OrderService interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*Order, error)
	GetOrder(context.Context, *OrderRequest) (*Order, error)
	ListOrders(context.Context, *UserRequest) (*OrderList, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*Order, error)
	DeleteOrder(context.Context, *OrderRequest) (*Empty, error)
}

var orderDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderService)(nil),
	Methods: []grpc.MethodDesc{
		unary("PlaceOrder", OrderServiceName, OrderService.PlaceOrder),
		unary("GetOrder", OrderServiceName, OrderService.GetOrder),
		unary("ListOrders", OrderServiceName, OrderService.ListOrders),
		unary("UpdateStatus", OrderServiceName, OrderService.UpdateStatus),
		unary("DeleteOrder", OrderServiceName, OrderService.DeleteOrder),
	},
}

type OrderServer struct {
	saga *order.Saga
	svc  *order.Service
}

func NewOrderServer(saga *order.Saga, svc *order.Service) *OrderServer {
	return &OrderServer{saga: saga, svc: svc}
}

func RegisterOrder(s grpc.ServiceRegistrar, srv OrderService) {
	s.RegisterService(&orderDesc, srv)
}

// PlaceOrder answers with the persisted order, including what is still
// pending reconciliation.
func (s *OrderServer) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*Order, error) {
	o, err := s.saga.PlaceOrder(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return orderToWire(o), nil
}

func (s *OrderServer) GetOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	o, err := s.svc.Get(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return orderToWire(o), nil
}

func (s *OrderServer) ListOrders(ctx context.Context, req *UserRequest) (*OrderList, error) {
	list, err := s.svc.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &OrderList{Orders: make([]Order, 0, len(list))}
	for _, o := range list {
		out.Orders = append(out.Orders, *orderToWire(o))
	}
	return out, nil
}

func (s *OrderServer) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*Order, error) {
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		return nil, toStatus(err)
	}
	o, err := s.svc.UpdateStatus(ctx, req.OrderID, to)
	if err != nil {
		return nil, toStatus(err)
	}
	return orderToWire(o), nil
}

func (s *OrderServer) DeleteOrder(ctx context.Context, req *OrderRequest) (*Empty, error) {
	if err := s.svc.Delete(ctx, req.OrderID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

type OrderClient struct {
	invoker
}

func NewOrderClient(cc grpc.ClientConnInterface, timeout time.Duration) *OrderClient {
	return &OrderClient{invoker{cc: cc, service: OrderServiceName, timeout: timeout}}
}

func (c *OrderClient) PlaceOrder(ctx context.Context, userID string) (*order.Order, error) {
	return c.one(ctx, "PlaceOrder", &PlaceOrderRequest{UserID: userID})
}

func (c *OrderClient) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	return c.one(ctx, "GetOrder", &OrderRequest{OrderID: id})
}

func (c *OrderClient) UpdateStatus(ctx context.Context, id string, to order.Status) (*order.Order, error) {
	return c.one(ctx, "UpdateStatus", &UpdateStatusRequest{OrderID: id, Status: string(to)})
}

func (c *OrderClient) one(ctx context.Context, method string, in any) (*order.Order, error) {
	var out Order
	if err := c.call(ctx, method, in, &out); err != nil {
		return nil, err
	}
	return orderFromWire(&out), nil
}

func (c *OrderClient) ListOrders(ctx context.Context, userID string) ([]*order.Order, error) {
	var out OrderList
	if err := c.call(ctx, "ListOrders", &UserRequest{UserID: userID}, &out); err != nil {
		return nil, err
	}
	list := make([]*order.Order, 0, len(out.Orders))
	for i := range out.Orders {
		list = append(list, orderFromWire(&out.Orders[i]))
	}
	return list, nil
}

func (c *OrderClient) DeleteOrder(ctx context.Context, id string) error {
	return c.call(ctx, "DeleteOrder", &OrderRequest{OrderID: id}, &Empty{})
}
