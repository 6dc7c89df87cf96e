package domain

// CartItem is a priced line as presented at checkout.
type CartItem struct {
	ProductID   string            `json:"product_id"`
	Title       string            `json:"title"`
	Quantity    int               `json:"quantity"`
	UnitPrice   int64             `json:"unit_price"`
	ProductType ProductType       `json:"product_type"`
	Options     map[string]string `json:"options,omitempty"`
}

// LineTotal is quantity times unit price. Only call it on validated carts.
func (i CartItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

func (i CartItem) checkedLineTotal() (int64, error) {
	total, ok := mulAmount(int64(i.Quantity), i.UnitPrice)
	if !ok {
		return 0, NewAmountOverflowError(i.ProductID)
	}
	return total, nil
}

// Cart is a priced cart. UserID is nil for guest checkout.
type Cart struct {
	UserID          *string    `json:"user_id,omitempty"`
	Contact         Contact    `json:"contact"`
	Items           []CartItem `json:"items"`
	Currency        string     `json:"currency"`
	ShippingAddress string     `json:"shipping_address"`
	BillingAddress  string     `json:"billing_address"`
	Notes           string     `json:"notes,omitempty"`
}

// Total sums the line totals. Validate rejects carts whose total overflows.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// HasPhysicalItem reports whether at least one line can be delivered for cash on delivery.
func (c *Cart) HasPhysicalItem() bool {
	for _, item := range c.Items {
		if item.ProductType == ProductPhysical {
			return true
		}
	}
	return false
}

// Validate rejects carts that cannot start a checkout.
func (c *Cart) Validate() error {
	if len(c.Items) == 0 {
		return NewEmptyCartError()
	}
	if c.Currency == "" {
		return NewMissingRequiredFieldError("currency")
	}
	if c.Contact.Email == "" && c.Contact.Phone == "" {
		return NewMissingRequiredFieldError("contact")
	}
	for _, item := range c.Items {
		if item.ProductID == "" {
			return NewMissingRequiredFieldError("product_id")
		}
		if item.Quantity <= 0 {
			return NewInvalidAmountError(int64(item.Quantity))
		}
		if item.UnitPrice < 0 {
			return NewInvalidAmountError(item.UnitPrice)
		}
	}
	total, err := c.checkedTotal()
	if err != nil {
		return err
	}
	if total <= 0 {
		return NewInvalidAmountError(total)
	}
	return nil
}

func (c *Cart) checkedTotal() (int64, error) {
	var total int64
	for _, item := range c.Items {
		line, err := item.checkedLineTotal()
		if err != nil {
			return 0, err
		}
		var ok bool
		if total, ok = addAmount(total, line); !ok {
			return 0, NewAmountOverflowError("total")
		}
	}
	return total, nil
}

// mulAmount multiplies non-negative minor-unit amounts, reporting false on overflow.
func mulAmount(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

func addAmount(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

// OrderItems converts cart lines into order lines with computed totals.
func (c *Cart) OrderItems() []OrderItem {
	items := make([]OrderItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, OrderItem{
			ProductID:   item.ProductID,
			Title:       item.Title,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.LineTotal(),
			ProductType: item.ProductType,
			Options:     item.Options,
		})
	}
	return items
}
