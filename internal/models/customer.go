package models

// Recipient carries delivery or contact details recorded on an order.
type Recipient struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Note    string `json:"note"`
}

// Customer identifies who placed an order. It is either AuthenticatedCustomer
// or GuestCustomer.
type Customer interface {
	customer()
}

// AuthenticatedCustomer is an order placed by a signed-in user.
type AuthenticatedCustomer struct {
	UserID int64
}

// GuestCustomer is an order placed at a table without an account.
type GuestCustomer struct {
	Contact Recipient
}

func (AuthenticatedCustomer) customer() {}
func (GuestCustomer) customer()         {}

// ApplyCustomer writes the customer identity onto the order columns.
func (o *Order) ApplyCustomer(c Customer) {
	switch v := c.(type) {
	case AuthenticatedCustomer:
		uid := v.UserID
		o.UserID = &uid
		o.IsGuest = false
	case GuestCustomer:
		o.UserID = nil
		o.IsGuest = true
		o.RecipientName = v.Contact.Name
		o.RecipientPhone = v.Contact.Phone
		o.RecipientAddress = v.Contact.Address
		o.DeliveryNote = v.Contact.Note
	}
}

// Customer rebuilds the tagged identity from the persisted columns.
func (o *Order) Customer() Customer {
	if o.IsGuest || o.UserID == nil {
		return GuestCustomer{Contact: Recipient{
			Name:    o.RecipientName,
			Phone:   o.RecipientPhone,
			Address: o.RecipientAddress,
			Note:    o.DeliveryNote,
		}}
	}
	return AuthenticatedCustomer{UserID: *o.UserID}
}
