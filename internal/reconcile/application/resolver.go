package application

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// The metadata bag was written by several historical checkout code
// paths with slightly different field names. Each concern resolves
// through an ordered key list so a new variant is a table edit, not a
// new branch.
var (
	firstNameKeys = []string{"firstName", "first_name"}
	lastNameKeys  = []string{"lastName", "last_name"}
	fullNameKeys  = []string{"name", "customer_name"}
	emailKeys     = []string{"email", "customer_email"}
	phoneKeys     = []string{"phone", "contact"}
	addressKeys   = []string{"address", "shipping_address"}
	cartKeys      = []string{"cart_items_json", "cart_json"}
	summaryKeys   = []string{"items_summary", "items"}
)

const fallbackFirstName = "Guest"
const fallbackSummary = "items unknown"

// ResolveCustomer assembles the best-available customer view from the
// metadata bag. Pure and total: any bag, including an empty one, yields
// a usable result.
func ResolveCustomer(meta map[string]string) domain.Customer {
	c := domain.Customer{
		Email: firstValue(meta, emailKeys),
		Phone: firstValue(meta, phoneKeys),
	}
	c.FirstName, c.LastName = resolveName(meta, c.Email)
	c.Address = resolveAddress(meta)
	return c
}

// resolveName precedence: explicit first/last fields, then a combined
// name split on whitespace, then the local part of the email, then a
// fixed placeholder.
func resolveName(meta map[string]string, email string) (first, last string) {
	first = firstValue(meta, firstNameKeys)
	last = firstValue(meta, lastNameKeys)
	if first != "" {
		return first, last
	}
	if full := firstValue(meta, fullNameKeys); full != "" {
		parts := strings.Fields(full)
		if len(parts) > 0 {
			return parts[0], strings.Join(parts[1:], " ")
		}
	}
	if email != "" {
		if at := strings.Index(email, "@"); at > 0 {
			return email[:at], last
		}
	}
	return fallbackFirstName, last
}

// resolveAddress starts from the address field and appends city, state
// and zip only when not already substring-present, since one upstream
// path concatenated them before writing the bag.
func resolveAddress(meta map[string]string) string {
	addr := firstValue(meta, addressKeys)
	for _, part := range []struct{ key, sep string }{
		{"city", ", "},
		{"state", ", "},
		{"zipCode", " "},
	} {
		v := strings.TrimSpace(meta[part.key])
		if v == "" || strings.Contains(addr, v) {
			continue
		}
		if addr == "" {
			addr = v
			continue
		}
		addr += part.sep + v
	}
	return addr
}

type cartSnapshotItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// ResolveItems parses the JSON cart snapshot when present, otherwise
// degrades to the human-readable summary string. Reconciliation is
// never blocked by a malformed snapshot.
func ResolveItems(meta map[string]string) ([]domain.LineItem, string) {
	summary := firstValue(meta, summaryKeys)
	if summary == "" {
		summary = fallbackSummary
	}

	raw := firstValue(meta, cartKeys)
	if raw == "" {
		return nil, summary
	}
	var snapshot []cartSnapshotItem
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, summary
	}
	items := make([]domain.LineItem, 0, len(snapshot))
	for _, it := range snapshot {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, domain.LineItem{
			Name:       it.Name,
			Quantity:   qty,
			PriceMinor: int64(math.Round(it.Price * 100)),
		})
	}
	return items, summary
}

func firstValue(meta map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(meta[k]); v != "" {
			return v
		}
	}
	return ""
}
