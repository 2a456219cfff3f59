// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/payment"
	"github.com/yametee/storefront-api/internal/domain/promotion"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/metrics"
	"github.com/yametee/storefront-api/internal/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// maxOrderNumberAttempts bounds regeneration after an order number collision
const maxOrderNumberAttempts = 3

var tracer = otel.Tracer("storefront/checkout")

// CartSource is the part of the cart aggregate checkout needs
type CartSource interface {
	Snapshot(ctx context.Context, owner cart.Owner) (*cart.Cart, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

// PromotionEvaluator prices promotions for a cart
type PromotionEvaluator interface {
	Evaluate(ctx context.Context, in promotion.Input) (*promotion.Result, error)
}

// Service is the checkout orchestrator: cart to pending order plus a hosted
// payment session
type Service struct {
	carts      CartSource
	catalog    catalog.Store
	promotions PromotionEvaluator
	orders     order.Store
	gateway    payment.Gateway
	publisher  order.Publisher
	cfg        config.CheckoutConfig
	timeout    time.Duration
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Dependencies groups the collaborators of the checkout service
type Dependencies struct {
	Carts      CartSource
	Catalog    catalog.Store
	Promotions PromotionEvaluator
	Orders     order.Store
	Gateway    payment.Gateway
	Publisher  order.Publisher
	Metrics    *metrics.Metrics
}

// NewService creates a new checkout service
func NewService(deps Dependencies, cfg *config.Config, logger logrus.FieldLogger) *Service {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = order.NopPublisher{}
	}
	return &Service{
		carts:      deps.Carts,
		catalog:    deps.Catalog,
		promotions: deps.Promotions,
		orders:     deps.Orders,
		gateway:    deps.Gateway,
		publisher:  publisher,
		cfg:        cfg.Checkout,
		timeout:    cfg.PayMongo.Timeout,
		logger:     logger.WithField("component", "checkout"),
		metrics:    deps.Metrics,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CustomerDetails is the contact and shipping information entered at checkout
type CustomerDetails struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Request represents a checkout submission
type Request struct {
	Owner         cart.Owner      `json:"-"`
	Customer      CustomerDetails `json:"customer"`
	PaymentMethod string          `json:"payment_method"`
	PromotionCode string          `json:"promotion_code"`
	Channel       string          `json:"channel"`
}

// QuoteLine is a cart line priced for checkout
type QuoteLine struct {
	VariantID   uint            `json:"variant_id"`
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Size        string          `json:"size"`
	Color       string          `json:"color"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Quote is the priced cart: what the shopper would pay
type Quote struct {
	Lines         []QuoteLine           `json:"lines"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	DiscountTotal decimal.Decimal       `json:"discount_total"`
	ShippingFee   decimal.Decimal       `json:"shipping_fee"`
	GrandTotal    decimal.Decimal       `json:"grand_total"`
	FreeShipping  bool                  `json:"free_shipping"`
	Applied       []promotion.Applied   `json:"applied_promotions"`
	Rejections    []promotion.Rejection `json:"rejected_promotions,omitempty"`
	Currency      string                `json:"currency"`
}

// Result is returned to the shopper after a successful checkout
type Result struct {
	OrderNumber   string              `json:"order_number"`
	CheckoutURL   string              `json:"checkout_url"`
	PaymentID     string              `json:"payment_id"`
	Status        order.OrderStatus   `json:"status"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	Quote         *Quote              `json:"summary"`
}

// buyer is what promotion rules know about the shopper
type buyer struct {
	customer *order.Customer
	returned bool
}

// Checkout turns the owner's cart into a PENDING order and opens a hosted
// payment session for it. Stock is checked here and debited only when the
// payment is confirmed.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "checkout.Checkout")
	defer span.End()

	res, err := s.checkout(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.CheckoutOutcome(outcomeFor(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("order.number", res.OrderNumber))
	s.metrics.CheckoutOutcome("success")
	return res, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (*Result, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.carts.Snapshot(ctx, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(snapshot.Lines) == 0 {
		return nil, apperrors.Validation("cart", "Cart is empty")
	}

	quote, who, err := s.quote(ctx, req, snapshot.Lines)
	if err != nil {
		return nil, err
	}

	o, err := s.createOrder(ctx, req, quote, who)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(logrus.Fields{
		"order_number": o.OrderNumber,
		"grand_total":  quote.GrandTotal.StringFixed(money.Places),
	})
	log.Info("Order created")

	if err := s.publisher.Publish(ctx, order.NewEvent(order.EventOrderCreated, o, s.now())); err != nil {
		log.WithError(err).Warn("Failed to publish order created event")
	}

	session, err := s.openSession(ctx, req, o, quote)
	if err != nil {
		// the order stays PENDING/UNPAID; the shopper may retry payment
		log.WithError(err).Warn("Payment session could not be created")
		var ge *apperrors.GatewayError
		if !errors.As(err, &ge) {
			err = &apperrors.GatewayError{Op: "create checkout session", Err: err, Retryable: errors.Is(err, context.DeadlineExceeded)}
		}
		return nil, err
	}

	if err := s.attachPayment(ctx, o, req.PaymentMethod, session); err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, req.Owner); err != nil {
		log.WithError(err).Warn("Failed to clear cart after checkout")
	}

	return &Result{
		OrderNumber:   o.OrderNumber,
		CheckoutURL:   session.CheckoutURL,
		PaymentID:     session.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Quote:         quote,
	}, nil
}

// Preview prices the owner's cart exactly as checkout would, without
// persisting anything or contacting the gateway.
func (s *Service) Preview(ctx context.Context, req Request) (*Quote, error) {
	ctx, span := tracer.Start(ctx, "checkout.Preview")
	defer span.End()

	req.Customer.Email = strings.ToLower(strings.TrimSpace(req.Customer.Email))
	if req.Channel == "" {
		req.Channel = s.cfg.DefaultChannel
	}

	snapshot, err := s.carts.Snapshot(ctx, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(snapshot.Lines) == 0 {
		return &Quote{
			Lines:         []QuoteLine{},
			Subtotal:      decimal.Zero,
			DiscountTotal: decimal.Zero,
			ShippingFee:   decimal.Zero,
			GrandTotal:    decimal.Zero,
			Applied:       []promotion.Applied{},
			Currency:      s.cfg.Currency,
		}, nil
	}

	quote, _, err := s.quote(ctx, req, snapshot.Lines)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return quote, nil
}

// normalize validates the shopper's input
func (s *Service) normalize(req Request) (Request, error) {
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !payment.IsSupportedMethod(req.PaymentMethod) {
		return req, apperrors.Validation("payment_method", "Unsupported payment method %q", req.PaymentMethod)
	}
	if req.Channel == "" {
		req.Channel = s.cfg.DefaultChannel
	}

	c := &req.Customer
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Line1 = strings.TrimSpace(c.Line1)
	c.Line2 = strings.TrimSpace(c.Line2)
	c.City = strings.TrimSpace(c.City)
	c.Province = strings.TrimSpace(c.Province)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	c.Country = strings.TrimSpace(c.Country)
	if c.Country == "" {
		c.Country = "Philippines"
	}

	required := []struct{ field, value, label string }{
		{"email", c.Email, "Email"},
		{"name", c.Name, "Name"},
		{"phone", c.Phone, "Phone"},
		{"line1", c.Line1, "Address line 1"},
		{"city", c.City, "City"},
		{"province", c.Province, "Province"},
		{"postal_code", c.PostalCode, "Postal code"},
	}
	for _, r := range required {
		if r.value == "" {
			return req, apperrors.Validation(r.field, "%s is required", r.label)
		}
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return req, apperrors.Validation("email", "Invalid email address")
	}
	return req, nil
}

// quote checks availability of every line against the live catalog, prices
// the cart and evaluates promotions. All stock shortfalls are reported at once.
func (s *Service) quote(ctx context.Context, req Request, lines []cart.Line) (*Quote, buyer, error) {
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.VariantID)
	}

	var (
		details map[uint]catalog.VariantDetail
		who     buyer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		details, err = s.catalog.GetVariants(gctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load variants: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		who, err = s.lookupBuyer(gctx, req.Customer.Email)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, buyer{}, err
	}

	now := s.now()
	q := &Quote{
		Lines:    make([]QuoteLine, 0, len(lines)),
		Subtotal: decimal.Zero,
		Currency: s.cfg.Currency,
	}
	promoLines := make([]promotion.Line, 0, len(lines))
	var shortfalls []apperrors.StockShortfall

	for _, l := range lines {
		d, ok := details[l.VariantID]
		if !ok {
			return nil, buyer{}, apperrors.Validation("variant_id", "Item %d is no longer available", l.VariantID)
		}

		switch err := catalog.CheckAvailability(d, l.Quantity, now); {
		case err == nil:
		case errors.Is(err, catalog.ErrInsufficientStock):
			shortfalls = append(shortfalls, apperrors.StockShortfall{
				VariantID:   d.ID,
				ProductName: d.DisplayName(),
				Requested:   l.Quantity,
				Available:   d.StockQuantity,
			})
			continue
		case errors.Is(err, catalog.ErrNotReleased):
			return nil, buyer{}, apperrors.Validation("variant_id", "%s is not released yet", d.DisplayName())
		default:
			return nil, buyer{}, apperrors.Validation("variant_id", "%s is not available", d.DisplayName())
		}

		lineTotal := d.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		q.Lines = append(q.Lines, QuoteLine{
			VariantID:   d.ID,
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			SKU:         d.SKU,
			Size:        d.Size,
			Color:       d.Color,
			Quantity:    l.Quantity,
			UnitPrice:   d.Price,
			LineTotal:   lineTotal,
		})
		q.Subtotal = q.Subtotal.Add(lineTotal)
		promoLines = append(promoLines, promotion.Line{
			VariantID:     d.ID,
			ProductID:     d.ProductID,
			UnitPrice:     d.Price,
			Quantity:      l.Quantity,
			CollectionIDs: d.CollectionIDs(),
		})
	}
	if len(shortfalls) > 0 {
		sort.Slice(shortfalls, func(i, j int) bool { return shortfalls[i].VariantID < shortfalls[j].VariantID })
		return nil, buyer{}, &apperrors.StockError{Lines: shortfalls}
	}

	shipping := decimal.Zero
	if q.Subtotal.IsPositive() {
		shipping = s.cfg.ShippingFee
	}

	in := promotion.Input{
		Lines:       promoLines,
		Now:         now,
		Channel:     req.Channel,
		Code:        req.PromotionCode,
		ShippingFee: shipping,
		Customer:    promotion.Customer{HasCompletedOrder: who.returned},
	}
	if who.customer != nil {
		id := who.customer.ID
		in.Customer.ID = &id
		in.Customer.Tier = who.customer.Tier
	}

	promo, err := s.promotions.Evaluate(ctx, in)
	if err != nil {
		return nil, buyer{}, err
	}

	q.DiscountTotal = promo.DiscountTotal
	q.FreeShipping = promo.FreeShipping
	q.Applied = promo.Applied
	q.Rejections = promo.Rejections
	if promo.FreeShipping {
		shipping = decimal.Zero
	}
	q.ShippingFee = shipping
	q.GrandTotal = money.ClampZero(q.Subtotal.Sub(q.DiscountTotal).Add(shipping))
	return q, who, nil
}

func (s *Service) lookupBuyer(ctx context.Context, email string) (buyer, error) {
	if email == "" {
		return buyer{}, nil
	}
	c, err := s.orders.FindCustomerByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, order.ErrCustomerNotFound) {
			return buyer{}, nil
		}
		return buyer{}, fmt.Errorf("failed to look up customer: %w", err)
	}
	returned, err := s.orders.HasCompletedOrder(ctx, c.ID)
	if err != nil {
		return buyer{}, fmt.Errorf("failed to look up order history: %w", err)
	}
	return buyer{customer: c, returned: returned}, nil
}

// createOrder writes customer, address, order, items and promotions in one
// transaction, retrying on order number collisions.
func (s *Service) createOrder(ctx context.Context, req Request, q *Quote, who buyer) (*order.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		o := s.buildOrder(req, q)
		err := s.orders.WithinTx(ctx, func(tx order.Tx) error {
			customer := &order.Customer{
				Email: req.Customer.Email,
				Name:  req.Customer.Name,
				Phone: req.Customer.Phone,
			}
			if who.customer != nil {
				customer.Tier = who.customer.Tier
			}
			if err := tx.UpsertCustomer(customer); err != nil {
				return fmt.Errorf("upsert customer: %w", err)
			}

			address := &order.Address{
				CustomerID: &customer.ID,
				FullName:   req.Customer.Name,
				Phone:      req.Customer.Phone,
				Line1:      req.Customer.Line1,
				Line2:      req.Customer.Line2,
				City:       req.Customer.City,
				Province:   req.Customer.Province,
				PostalCode: req.Customer.PostalCode,
				Country:    req.Customer.Country,
			}
			if err := tx.CreateAddress(address); err != nil {
				return fmt.Errorf("create address: %w", err)
			}

			o.CustomerID = &customer.ID
			o.AddressID = address.ID
			if err := tx.CreateOrder(o); err != nil {
				return err
			}

			return tx.AppendHistory(&order.StatusHistory{
				OrderID:   o.ID,
				ToStatus:  o.Status,
				ToPayment: o.PaymentStatus,
				Actor:     "checkout",
				Note:      "Order placed",
				CreatedAt: s.now(),
			})
		})
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, order.ErrDuplicateOrderNumber) {
			return nil, apperrors.Persistence("create order", err)
		}
		lastErr = err
		s.logger.WithField("order_number", o.OrderNumber).Warn("Order number collision, regenerating")
	}
	return nil, apperrors.Persistence("create order", lastErr)
}

func (s *Service) buildOrder(req Request, q *Quote) *order.Order {
	o := &order.Order{
		OrderNumber:     s.nextOrderNumber(),
		Email:           req.Customer.Email,
		Status:          order.OrderStatusPending,
		PaymentStatus:   order.PaymentStatusUnpaid,
		PaymentProvider: s.gateway.Name(),
		PaymentMethod:   req.PaymentMethod,
		Channel:         req.Channel,
		Currency:        q.Currency,
		Subtotal:        q.Subtotal,
		DiscountTotal:   q.DiscountTotal,
		ShippingFee:     q.ShippingFee,
		GrandTotal:      q.GrandTotal,
	}
	for _, l := range q.Lines {
		o.Items = append(o.Items, order.OrderItem{
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			SKU:         l.SKU,
			Size:        l.Size,
			Color:       l.Color,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TotalPrice:  l.LineTotal,
		})
	}
	for _, a := range q.Applied {
		o.Promotions = append(o.Promotions, order.OrderPromotion{
			PromotionID:    a.PromotionID,
			Name:           a.Name,
			Code:           a.Code,
			Type:           string(a.Type),
			Amount:         a.Amount,
			ShippingWaived: a.ShippingWaived,
		})
	}
	return o
}

func (s *Service) nextOrderNumber() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return order.GenerateOrderNumber(s.now(), s.rng)
}

// openSession asks the gateway for a hosted checkout page. The call is
// bounded by the gateway timeout and never retried here.
func (s *Service) openSession(ctx context.Context, req Request, o *order.Order, q *Quote) (*payment.Session, error) {
	amount, err := money.ToMinorUnits(q.GrandTotal)
	if err != nil {
		return nil, fmt.Errorf("invalid order total: %w", err)
	}

	items, err := sessionLineItems(o, q, amount)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return s.gateway.CreateCheckoutSession(callCtx, payment.SessionRequest{
		AmountMinor:     amount,
		Currency:        q.Currency,
		Description:     fmt.Sprintf("Order %s", o.OrderNumber),
		SuccessURL:      withOrderNumber(s.cfg.SuccessURL, o.OrderNumber),
		FailedURL:       withOrderNumber(s.cfg.FailedURL, o.OrderNumber),
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: o.OrderNumber,
		CustomerName:    req.Customer.Name,
		CustomerEmail:   req.Customer.Email,
		CustomerPhone:   req.Customer.Phone,
		LineItems:       items,
		Metadata: map[string]string{
			"order_number": o.OrderNumber,
			"channel":      req.Channel,
		},
		IdempotencyKey: uuid.NewString(),
	})
}

// sessionLineItems itemizes the order for the hosted page. The gateway
// charges the sum of the line items, and it has no negative lines, so a
// discounted order is sent as a single line for the grand total.
func sessionLineItems(o *order.Order, q *Quote, amount int64) ([]payment.LineItem, error) {
	if q.DiscountTotal.IsPositive() {
		return []payment.LineItem{{
			Name:        fmt.Sprintf("Order %s", o.OrderNumber),
			Quantity:    1,
			AmountMinor: amount,
		}}, nil
	}

	items := make([]payment.LineItem, 0, len(q.Lines)+1)
	for _, l := range q.Lines {
		unit, err := money.ToMinorUnits(l.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price: %w", err)
		}
		items = append(items, payment.LineItem{
			Name:        fmt.Sprintf("%s (%s / %s)", l.ProductName, l.Size, l.Color),
			Quantity:    l.Quantity,
			AmountMinor: unit,
		})
	}
	if q.ShippingFee.IsPositive() {
		fee, err := money.ToMinorUnits(q.ShippingFee)
		if err != nil {
			return nil, fmt.Errorf("invalid shipping fee: %w", err)
		}
		items = append(items, payment.LineItem{Name: "Shipping", Quantity: 1, AmountMinor: fee})
	}
	return items, nil
}

// attachPayment records the gateway session, redeems the order's
// promotions and moves its payment status to PENDING in one transaction.
// Redemptions are counted only once a session exists, so a failed gateway
// call leaves usage limits untouched.
func (s *Service) attachPayment(ctx context.Context, o *order.Order, method string, session *payment.Session) error {
	promotions := o.Promotions
	err := s.orders.WithinTx(ctx, func(tx order.Tx) error {
		locked, err := tx.LockOrderByID(o.ID)
		if err != nil {
			return err
		}

		for _, p := range promotions {
			if err := tx.ConsumePromotion(p.PromotionID); err != nil {
				if errors.Is(err, promotion.ErrUsageLimitReached) {
					return apperrors.Validation("promotion_code", "Promotion %q is no longer available", p.Name)
				}
				return fmt.Errorf("consume promotion %d: %w", p.PromotionID, err)
			}
		}

		p := &order.Payment{
			OrderID:           locked.ID,
			Provider:          s.gateway.Name(),
			ProviderPaymentID: session.ID,
			Method:            method,
			Amount:            locked.GrandTotal,
			Status:            order.PaymentStatusPending,
			CheckoutURL:       session.CheckoutURL,
			RawPayload:        string(session.Raw),
		}
		if err := tx.CreatePayment(p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		if !order.CanTransitionPayment(locked.PaymentStatus, order.PaymentStatusPending) {
			// a webhook already moved it on
			return nil
		}
		from := locked.PaymentStatus
		locked.PaymentStatus = order.PaymentStatusPending
		if err := tx.UpdateOrder(locked); err != nil {
			return err
		}
		*o = *locked
		return tx.AppendHistory(&order.StatusHistory{
			OrderID:     locked.ID,
			FromStatus:  locked.Status,
			ToStatus:    locked.Status,
			FromPayment: from,
			ToPayment:   locked.PaymentStatus,
			Actor:       "checkout",
			Note:        "Payment session created",
			CreatedAt:   s.now(),
		})
	})
	if err != nil {
		return apperrors.Persistence("record payment", err)
	}
	return nil
}

func withOrderNumber(tmpl, orderNumber string) string {
	return strings.ReplaceAll(tmpl, "%s", url.PathEscape(orderNumber))
}

func outcomeFor(err error) string {
	var ve *apperrors.ValidationError
	var se *apperrors.StockError
	var ge *apperrors.GatewayError
	switch {
	case errors.As(err, &se):
		return "out_of_stock"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &ge):
		return "gateway_error"
	default:
		return "error"
	}
}
