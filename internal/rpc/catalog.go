package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
	"github.com/ahinestrog/bookstore-orders/internal/catalog"
)

const CatalogServiceName = "catalog.Catalog"

type CatalogService interface {
	GetBookById(context.Context, *BookRequest) (*Book, error)
	CheckStock(context.Context, *CheckStockRequest) (*CheckStockResponse, error)
	DecreaseStock(context.Context, *DecreaseStockRequest) (*DecreaseStockResponse, error)
	ReleaseStock(context.Context, *ReleaseStockRequest) (*ReleaseStockResponse, error)
	UpdatePrice(context.Context, *UpdatePriceRequest) (*Book, error)
}

var catalogDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogService)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetBookById", CatalogServiceName, CatalogService.GetBookById),
		unary("CheckStock", CatalogServiceName, CatalogService.CheckStock),
		unary("DecreaseStock", CatalogServiceName, CatalogService.DecreaseStock),
		unary("ReleaseStock", CatalogServiceName, CatalogService.ReleaseStock),
		unary("UpdatePrice", CatalogServiceName, CatalogService.UpdatePrice),
	},
}

// CatalogServer exposes the stock gate.
type CatalogServer struct {
	gate *catalog.Gate
}

func NewCatalogServer(gate *catalog.Gate) *CatalogServer { return &CatalogServer{gate: gate} }

func RegisterCatalog(s grpc.ServiceRegistrar, srv CatalogService) {
	s.RegisterService(&catalogDesc, srv)
}

func (s *CatalogServer) GetBookById(ctx context.Context, req *BookRequest) (*Book, error) {
	b, err := s.gate.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, toStatus(err)
	}
	return bookToWire(b), nil
}

func (s *CatalogServer) CheckStock(ctx context.Context, req *CheckStockRequest) (*CheckStockResponse, error) {
	res, err := s.gate.CheckStock(ctx, req.BookID, req.RequestedQuantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CheckStockResponse{Available: res.Available, Stock: res.Stock, Message: res.Message}, nil
}

func (s *CatalogServer) DecreaseStock(ctx context.Context, req *DecreaseStockRequest) (*DecreaseStockResponse, error) {
	var (
		res catalog.DecreaseResult
		err error
	)
	if req.OrderID != "" {
		res, err = s.gate.ReserveStock(ctx, catalog.ReservationKey{OrderID: req.OrderID, BookID: req.BookID}, req.Quantity)
	} else {
		res, err = s.gate.DecreaseStock(ctx, req.BookID, req.Quantity)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &DecreaseStockResponse{Success: res.Success, Duplicate: res.Duplicate, Message: res.Message}, nil
}

func (s *CatalogServer) ReleaseStock(ctx context.Context, req *ReleaseStockRequest) (*ReleaseStockResponse, error) {
	if req.OrderID == "" {
		return nil, toStatus(bookstore.InvalidArgf("order id required"))
	}
	released, err := s.gate.ReleaseStock(ctx, catalog.ReservationKey{OrderID: req.OrderID, BookID: req.BookID})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReleaseStockResponse{Released: released}, nil
}

func (s *CatalogServer) UpdatePrice(ctx context.Context, req *UpdatePriceRequest) (*Book, error) {
	if req.PriceCents < 0 {
		return nil, toStatus(bookstore.InvalidArgf("price %d", req.PriceCents))
	}
	b, err := s.gate.UpdatePrice(ctx, req.BookID, bookstore.Money(req.PriceCents))
	if err != nil {
		return nil, toStatus(err)
	}
	return bookToWire(b), nil
}

// CatalogClient is the remote stock gate used by the cart and order services.
type CatalogClient struct {
	invoker
}

func NewCatalogClient(cc grpc.ClientConnInterface, timeout time.Duration) *CatalogClient {
	return &CatalogClient{invoker{cc: cc, service: CatalogServiceName, timeout: timeout}}
}

func (c *CatalogClient) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	var out Book
	if err := c.call(ctx, "GetBookById", &BookRequest{BookID: id}, &out); err != nil {
		return nil, err
	}
	return bookFromWire(&out), nil
}

func (c *CatalogClient) CheckStock(ctx context.Context, bookID int64, qty int32) (catalog.CheckResult, error) {
	var out CheckStockResponse
	if err := c.call(ctx, "CheckStock", &CheckStockRequest{BookID: bookID, RequestedQuantity: qty}, &out); err != nil {
		return catalog.CheckResult{}, err
	}
	return catalog.CheckResult{Available: out.Available, Stock: out.Stock, Message: out.Message}, nil
}

func (c *CatalogClient) DecreaseStock(ctx context.Context, bookID int64, qty int32) (catalog.DecreaseResult, error) {
	return c.decrease(ctx, &DecreaseStockRequest{BookID: bookID, Quantity: qty})
}

func (c *CatalogClient) ReserveStock(ctx context.Context, key catalog.ReservationKey, qty int32) (catalog.DecreaseResult, error) {
	return c.decrease(ctx, &DecreaseStockRequest{BookID: key.BookID, Quantity: qty, OrderID: key.OrderID})
}

func (c *CatalogClient) decrease(ctx context.Context, req *DecreaseStockRequest) (catalog.DecreaseResult, error) {
	var out DecreaseStockResponse
	if err := c.call(ctx, "DecreaseStock", req, &out); err != nil {
		return catalog.DecreaseResult{}, err
	}
	return catalog.DecreaseResult{Success: out.Success, Duplicate: out.Duplicate, Message: out.Message}, nil
}

func (c *CatalogClient) ReleaseStock(ctx context.Context, key catalog.ReservationKey) (bool, error) {
	var out ReleaseStockResponse
	if err := c.call(ctx, "ReleaseStock", &ReleaseStockRequest{OrderID: key.OrderID, BookID: key.BookID}, &out); err != nil {
		return false, err
	}
	return out.Released, nil
}

func (c *CatalogClient) UpdatePrice(ctx context.Context, bookID int64, price bookstore.Money) (*catalog.Book, error) {
	var out Book
	if err := c.call(ctx, "UpdatePrice", &UpdatePriceRequest{BookID: bookID, PriceCents: price.Cents()}, &out); err != nil {
		return nil, err
	}
	return bookFromWire(&out), nil
}
