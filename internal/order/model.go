package order

import (
	"encoding/json"
	"strconv"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
)

// Line is one entry of an order's item list. The list keeps insertion order
// so checkout walks items deterministically across retries; a map would
// shuffle them.
type Line struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

type Order struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Items     []Line `json:"items"`
	Paid      bool   `json:"paid"`
	TotalCost int    `json:"total_cost"`
}

func (o *Order) Qty(itemID string) int {
	for _, l := range o.Items {
		if l.ItemID == itemID {
			return l.Qty
		}
	}
	return 0
}

// Add bumps the item's quantity, appending a new line on first add.
func (o *Order) Add(itemID string) {
	for i := range o.Items {
		if o.Items[i].ItemID == itemID {
			o.Items[i].Qty++
			return
		}
	}
	o.Items = append(o.Items, Line{ItemID: itemID, Qty: 1})
}

// Remove drops one unit, deleting the line when it hits zero. Returns false
// when the item is not in the order.
func (o *Order) Remove(itemID string) bool {
	for i := range o.Items {
		if o.Items[i].ItemID != itemID {
			continue
		}
		if o.Items[i].Qty > 1 {
			o.Items[i].Qty--
		} else {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
		}
		return true
	}
	return false
}

// Redis hash codec. Hash values are flat strings; items travel as JSON.

func (o *Order) toMap() (map[string]any, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"order_id":   o.OrderID,
		"user_id":    o.UserID,
		"items":      string(items),
		"paid":       strconv.FormatBool(o.Paid),
		"total_cost": strconv.Itoa(o.TotalCost),
	}, nil
}

func fromMap(m map[string]string) (*Order, error) {
	o := &Order{
		OrderID: m["order_id"],
		UserID:  m["user_id"],
	}
	if err := json.Unmarshal([]byte(m["items"]), &o.Items); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "order %s: bad items field", o.OrderID)
	}
	var err error
	if o.Paid, err = strconv.ParseBool(m["paid"]); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "order %s: bad paid field", o.OrderID)
	}
	if o.TotalCost, err = strconv.Atoi(m["total_cost"]); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "order %s: bad total_cost field", o.OrderID)
	}
	return o, nil
}
