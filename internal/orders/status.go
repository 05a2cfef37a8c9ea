package orders

import "fmt"

type Status int

const (
	StatusPendingPayment  Status = 0
	StatusPaid            Status = 1
	StatusShipped         Status = 2
	StatusCompleted       Status = 3
	StatusCancelled       Status = 4
	StatusRefundRequested Status = 5
	StatusRefunded        Status = 6
)

var statusNames = map[Status]string{
	StatusPendingPayment:  "PENDING_PAYMENT",
	StatusPaid:            "PAID",
	StatusShipped:         "SHIPPED",
	StatusCompleted:       "COMPLETED",
	StatusCancelled:       "CANCELLED",
	StatusRefundRequested: "REFUND_REQUESTED",
	StatusRefunded:        "REFUNDED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment:  {StatusPaid: true, StatusCancelled: true},
	StatusPaid:            {StatusShipped: true, StatusRefundRequested: true},
	StatusShipped:         {StatusCompleted: true, StatusRefundRequested: true},
	StatusRefundRequested: {StatusRefunded: true},
	StatusCompleted:       {},
	StatusCancelled:       {},
	StatusRefunded:        {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

// Actor is the order party allowed to fire a transition.
type Actor int

const (
	ActorBuyer Actor = iota
	ActorSeller
)

func (a Actor) String() string {
	if a == ActorSeller {
		return "seller"
	}
	return "buyer"
}

// TimeField names the transition timestamp column a transition stamps, if any.
type TimeField string

const (
	StampNone     TimeField = ""
	StampPay      TimeField = "pay_time"
	StampShip     TimeField = "ship_time"
	StampComplete TimeField = "complete_time"
)

// ProductField names a product attribute the lifecycle keeps in sync.
type ProductField int

const (
	FieldStatus ProductField = iota
	FieldShipped
)

// ProductSync is one synchronous call to the product directory.
type ProductSync struct {
	Field ProductField
	Value int
}

// Action is a lifecycle command, one per row of the transition table.
type Action string

const (
	ActionPay           Action = "pay"
	ActionCancel        Action = "cancel"
	ActionShip          Action = "ship"
	ActionComplete      Action = "complete"
	ActionRefund        Action = "refund"
	ActionConfirmRefund Action = "confirm-refund"
)

type rule struct {
	Actor Actor
	From  []Status
	To    Status
	Stamp TimeField
	Sync  []ProductSync
}

var rules = map[Action]rule{
	ActionPay: {
		Actor: ActorBuyer,
		From:  []Status{StatusPendingPayment},
		To:    StatusPaid,
		Stamp: StampPay,
		Sync:  []ProductSync{{Field: FieldStatus, Value: ProductSold}},
	},
	ActionCancel: {
		Actor: ActorBuyer,
		From:  []Status{StatusPendingPayment},
		To:    StatusCancelled,
		Sync:  []ProductSync{{Field: FieldStatus, Value: ProductListed}},
	},
	ActionShip: {
		Actor: ActorSeller,
		From:  []Status{StatusPaid},
		To:    StatusShipped,
		Stamp: StampShip,
		Sync:  []ProductSync{{Field: FieldShipped, Value: 1}},
	},
	ActionComplete: {
		Actor: ActorBuyer,
		From:  []Status{StatusShipped},
		To:    StatusCompleted,
		Stamp: StampComplete,
	},
	ActionRefund: {
		Actor: ActorBuyer,
		From:  []Status{StatusPaid, StatusShipped},
		To:    StatusRefundRequested,
	},
	ActionConfirmRefund: {
		Actor: ActorSeller,
		From:  []Status{StatusRefundRequested},
		To:    StatusRefunded,
		Sync: []ProductSync{
			{Field: FieldStatus, Value: ProductListed},
			{Field: FieldShipped, Value: 0},
		},
	},
}

// Actions lists every transition command in table order.
func Actions() []Action {
	return []Action{ActionPay, ActionCancel, ActionShip, ActionComplete, ActionRefund, ActionConfirmRefund}
}

func (r rule) allows(s Status) bool {
	for _, f := range r.From {
		if f == s {
			return true
		}
	}
	return false
}

// impliedProductValue is what a product field should read while an order sits in its
// current stored state. Used to re-sync after a persist that lost its race.
func impliedProductValue(o Order, f ProductField) int {
	switch f {
	case FieldShipped:
		if o.ShipTime != nil && o.Status != StatusRefunded {
			return 1
		}
		return 0
	default:
		switch o.Status {
		case StatusPaid, StatusShipped, StatusCompleted, StatusRefundRequested:
			return ProductSold
		}
		return ProductListed
	}
}
