// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/catalog"
	"github.com/your-org/storefront-backend/internal/domain/pricing"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
)

var (
	ErrOwnerNotFound    = errors.New("cart owner not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrInvalidItemRef   = errors.New("exactly one of bundle_id or product_id is required")
	ErrItemUnavailable  = errors.New("item is not available")
)

// Store is the persistence the cart needs
type Store interface {
	FindOrCreateCart(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error)
	AddOrIncrement(ctx context.Context, cartID uuid.UUID, ref ItemRef, qty int) (*CartItem, error)
	SetQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (*CartItem, error)
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	DeleteAll(ctx context.Context, cartID uuid.UUID) (int64, error)
}

// Catalog resolves current prices and stock
type Catalog interface {
	BundlesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Bundle, error)
	ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error)
}

// Service handles cart business logic
type Service struct {
	store   Store
	catalog Catalog
	log     logrus.FieldLogger
}

// NewService creates a new cart service
func NewService(store Store, catalog Catalog, log logrus.FieldLogger) *Service {
	return &Service{store: store, catalog: catalog, log: log}
}

// GetCart loads the owner's cart joined with live catalog data. The cart
// row is created on first read.
func (s *Service) GetCart(ctx context.Context, ownerID uuid.UUID) (*View, error) {
	cart, err := s.cartFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, cart)
}

// CheckStock reports whether every line can be fulfilled right now
func (s *Service) CheckStock(ctx context.Context, ownerID uuid.UUID) (*StockReport, error) {
	view, err := s.GetCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return EvaluateStock(view), nil
}

// AddItem adds a bundle or product to the cart. Adding an item that is
// already present increases its quantity.
func (s *Service) AddItem(ctx context.Context, ownerID uuid.UUID, req AddItemRequest) (*View, error) {
	if (req.BundleID == nil) == (req.ProductID == nil) {
		return nil, apperr.Validation(ErrInvalidItemRef.Error(), ErrInvalidItemRef)
	}
	if req.Quantity < 1 {
		return nil, apperr.Validation(ErrInvalidQuantity.Error(), ErrInvalidQuantity)
	}

	if err := s.ensureSellable(ctx, req); err != nil {
		return nil, err
	}

	cart, err := s.cartFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	ref := ItemRef{BundleID: req.BundleID, ProductID: req.ProductID}
	if _, err := s.store.AddOrIncrement(ctx, cart.ID, ref, req.Quantity); err != nil {
		return nil, apperr.Upstream("failed to add item to cart", true, err)
	}

	return s.buildView(ctx, cart)
}

// UpdateQuantity sets the quantity of one cart line
func (s *Service) UpdateQuantity(ctx context.Context, ownerID, lineID uuid.UUID, qty int) (*View, error) {
	if qty < 1 {
		return nil, apperr.Validation(ErrInvalidQuantity.Error(), ErrInvalidQuantity)
	}

	cart, err := s.cartFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.SetQuantity(ctx, cart.ID, lineID, qty); err != nil {
		if errors.Is(err, ErrCartItemNotFound) {
			return nil, apperr.NotFound(err.Error(), err)
		}
		return nil, apperr.Upstream("failed to update cart item", true, err)
	}

	return s.buildView(ctx, cart)
}

// RemoveItem deletes one cart line
func (s *Service) RemoveItem(ctx context.Context, ownerID, lineID uuid.UUID) (*View, error) {
	cart, err := s.cartFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteItem(ctx, cart.ID, lineID); err != nil {
		if errors.Is(err, ErrCartItemNotFound) {
			return nil, apperr.NotFound(err.Error(), err)
		}
		return nil, apperr.Upstream("failed to remove cart item", true, err)
	}

	return s.buildView(ctx, cart)
}

// Clear removes every line from the owner's cart
func (s *Service) Clear(ctx context.Context, ownerID uuid.UUID) error {
	cart, err := s.cartFor(ctx, ownerID)
	if err != nil {
		return err
	}

	removed, err := s.store.DeleteAll(ctx, cart.ID)
	if err != nil {
		return apperr.Upstream("failed to clear cart", true, err)
	}

	s.log.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"removed":  removed,
	}).Debug("Cart cleared")
	return nil
}

// EvaluateStock computes the stock verdict for a cart view. Lines whose
// catalog entry is gone or inactive count as out of stock.
func EvaluateStock(view *View) *StockReport {
	report := &StockReport{
		AllInStock:      true,
		Items:           make([]StockItem, 0, len(view.Lines)),
		OutOfStockItems: []StockItem{},
	}

	for _, line := range view.Lines {
		item := StockItem{
			LineID:         line.LineID,
			BundleID:       line.BundleID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			RequiredQty:    line.Quantity,
			AvailableStock: line.StockLimit,
		}

		switch {
		case !line.Available:
			zero := 0
			item.AvailableStock = &zero
		case line.StockLimit == nil:
			item.InStock = true
		default:
			item.InStock = *line.StockLimit >= line.Quantity
		}

		report.Items = append(report.Items, item)
		if !item.InStock {
			report.AllInStock = false
			report.OutOfStockItems = append(report.OutOfStockItems, item)
		}
	}

	return report
}

func (s *Service) cartFor(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	if ownerID == uuid.Nil {
		return nil, apperr.NotFound(ErrOwnerNotFound.Error(), ErrOwnerNotFound)
	}

	cart, err := s.store.FindOrCreateCart(ctx, ownerID)
	if err != nil {
		return nil, apperr.Upstream("failed to load cart", true, err)
	}
	return cart, nil
}

func (s *Service) ensureSellable(ctx context.Context, req AddItemRequest) error {
	if req.BundleID != nil {
		bundles, err := s.catalog.BundlesByID(ctx, []uuid.UUID{*req.BundleID})
		if err != nil {
			return apperr.Upstream("failed to load bundle", true, err)
		}
		bundle, ok := bundles[*req.BundleID]
		if !ok || !bundle.IsActive {
			return apperr.NotFound(catalog.ErrBundleNotFound.Error(), catalog.ErrBundleNotFound)
		}
		return nil
	}

	products, err := s.catalog.ProductsByID(ctx, []uuid.UUID{*req.ProductID})
	if err != nil {
		return apperr.Upstream("failed to load product", true, err)
	}
	product, ok := products[*req.ProductID]
	if !ok || !product.IsActive {
		return apperr.NotFound(ErrItemUnavailable.Error(), ErrItemUnavailable)
	}
	return nil
}

func (s *Service) buildView(ctx context.Context, cart *Cart) (*View, error) {
	items, err := s.store.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, apperr.Upstream("failed to load cart items", true, err)
	}

	var bundleIDs, productIDs []uuid.UUID
	for _, item := range items {
		if item.BundleID != nil {
			bundleIDs = append(bundleIDs, *item.BundleID)
		} else if item.ProductID != nil {
			productIDs = append(productIDs, *item.ProductID)
		}
	}

	bundles, err := s.catalog.BundlesByID(ctx, bundleIDs)
	if err != nil {
		return nil, apperr.Upstream("failed to load bundles", true, err)
	}
	products, err := s.catalog.ProductsByID(ctx, productIDs)
	if err != nil {
		return nil, apperr.Upstream("failed to load products", true, err)
	}

	view := &View{
		CartID:  cart.ID,
		OwnerID: cart.OwnerID,
		Lines:   make([]Line, 0, len(items)),
	}

	for _, item := range items {
		line := Line{
			LineID:    item.ID,
			BundleID:  item.BundleID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: decimal.Zero,
			LineTotal: decimal.Zero,
			AddedAt:   item.CreatedAt,
		}

		if item.BundleID != nil {
			if b, ok := bundles[*item.BundleID]; ok {
				line.SKU, line.Name = b.SKU, b.Name
				line.UnitPrice, line.WeightGrams, line.StockLimit = b.Price, b.WeightGrams, b.StockLimit
				line.Available = b.IsActive
			}
		} else if item.ProductID != nil {
			if p, ok := products[*item.ProductID]; ok {
				line.SKU, line.Name = p.SKU, p.Name
				line.UnitPrice, line.WeightGrams, line.StockLimit = p.Price, p.WeightGrams, p.StockLimit
				line.Available = p.IsActive
			}
		}

		if !line.Available {
			s.log.WithFields(logrus.Fields{
				"cart_id": cart.ID,
				"line_id": item.ID,
			}).Warn("Cart line references an unavailable catalog item")
		}

		line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.Lines = append(view.Lines, line)
	}

	totals := pricing.CalculateTotals(view.PricingLines(), pricing.DeliverySurface, decimal.Zero, decimal.Zero)
	view.Subtotal = totals.Subtotal
	view.ItemCount = totals.ItemCount
	view.TotalQuantity = totals.TotalQuantity

	return view, nil
}

